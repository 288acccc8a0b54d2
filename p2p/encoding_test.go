package p2p

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msgs := []Message{
		PeerInfo{ListenAddr: "127.0.0.1:8080", Known: []string{"127.0.0.1:8081", "127.0.0.1:8082"}},
		Chat{Text: "Random message 42", SentAt: 7 * time.Second},
	}

	for _, want := range msgs {
		frame, err := Encode(want)
		require.NoError(t, err)

		got, err := GobDecoder{}.Decode(bytes.NewReader(frame))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeChunkedStream(t *testing.T) {
	want := Chat{Text: "split across reads", SentAt: time.Second}
	frame, err := Encode(want)
	require.NoError(t, err)

	// One byte per read forces partial-frame reassembly.
	got, err := GobDecoder{}.Decode(iotest.OneByteReader(bytes.NewReader(frame)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeConsecutiveFrames(t *testing.T) {
	first := PeerInfo{ListenAddr: "127.0.0.1:9000"}
	second := Chat{Text: "hello", SentAt: 3 * time.Second}

	var stream bytes.Buffer
	for _, msg := range []Message{first, second} {
		frame, err := Encode(msg)
		require.NoError(t, err)
		stream.Write(frame)
	}

	dec := GobDecoder{}

	got, err := dec.Decode(&stream)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = dec.Decode(&stream)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	// Exactly one frame consumed per call, nothing left over.
	_, err = dec.Decode(&stream)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeUnknownKind(t *testing.T) {
	frame := []byte{0x7f, 0x0, 0x0, 0x0, 0x0}

	_, err := GobDecoder{}.Decode(bytes.NewReader(frame))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeTruncatedFrame(t *testing.T) {
	frame, err := Encode(Chat{Text: "cut short"})
	require.NoError(t, err)

	_, err = GobDecoder{}.Decode(bytes.NewReader(frame[:len(frame)-3]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeOversizeFrame(t *testing.T) {
	frame := []byte{KindChat, 0xff, 0xff, 0xff, 0xff}

	_, err := GobDecoder{}.Decode(bytes.NewReader(frame))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
