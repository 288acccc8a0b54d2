package p2p

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

// Frame layout: 1 kind byte, 4-byte big-endian payload length, then a
// gob-encoded payload of that length.
const headerSize = 5

// maxFrameSize bounds a single frame so a corrupt length prefix cannot
// force an absurd allocation.
const maxFrameSize = 1 << 20

var (
	ErrUnknownKind   = errors.New("p2p: unknown frame kind")
	ErrFrameTooLarge = errors.New("p2p: frame exceeds size limit")
)

// Encode serializes msg into a single wire frame.
func Encode(msg Message) ([]byte, error) {
	body := new(bytes.Buffer)
	if err := gob.NewEncoder(body).Encode(msg); err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}

	frame := make([]byte, headerSize+body.Len())
	frame[0] = msg.Kind()
	binary.BigEndian.PutUint32(frame[1:headerSize], uint32(body.Len()))
	copy(frame[headerSize:], body.Bytes())

	return frame, nil
}

// Decoder decodes messages from a byte stream.
type Decoder interface {
	Decode(io.Reader) (Message, error)
}

// GobDecoder reads the framing produced by Encode. Partial reads are
// buffered by io.ReadFull, so frames split across arbitrary chunk
// boundaries reassemble; the reader is advanced exactly one frame per
// call. Any decode failure is fatal to the owning connection.
type GobDecoder struct{}

func (GobDecoder) Decode(r io.Reader) (Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[1:])
	if size > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	dec := gob.NewDecoder(bytes.NewReader(body))
	switch header[0] {
	case KindPeerInfo:
		var info PeerInfo
		if err := dec.Decode(&info); err != nil {
			return nil, fmt.Errorf("decode peer info: %w", err)
		}
		return info, nil
	case KindChat:
		var chat Chat
		if err := dec.Decode(&chat); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		return chat, nil
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownKind, header[0])
	}
}
