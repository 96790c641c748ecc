package rtcpfb

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var firPacket = []byte{
	0x84, 206, 0x00, 0x04,
	0x12, 0x34, 0x56, 0x78,
	0x00, 0x00, 0x00, 0x00,
	0x23, 0x45, 0x67, 0x89,
	0x0d, 0x00, 0x00, 0x00,
}

func TestParseCommonHeader_Fir(t *testing.T) {
	h, n, err := ParseCommonHeader(firPacket)
	require.NoError(t, err)

	assert.Equal(t, uint8(2), h.Version)
	assert.False(t, h.Padding)
	assert.Equal(t, FormatFIR, h.CountOrFormat)
	assert.Equal(t, TypePSFB, h.PacketType)
	assert.Equal(t, uint16(4), h.LengthWords)
	assert.Equal(t, 16, h.PayloadSizeBytes)
	assert.Equal(t, 0, h.PaddingBytes)
	assert.Equal(t, 20, n)
	assert.Equal(t, 20, h.BlockSize())
	assert.True(t, h.IsFeedback())
}

func TestParseCommonHeader_ConsumesOnlyFirstPacket(t *testing.T) {
	compound := append(append([]byte{}, firPacket...), firPacket...)

	h, n, err := ParseCommonHeader(compound)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, 16, h.PayloadSizeBytes)

	_, n2, err := ParseCommonHeader(compound[n:])
	require.NoError(t, err)
	assert.Equal(t, 20, n2)
}

func TestParseCommonHeader_Padding(t *testing.T) {
	// RR with 4 padding bytes, the last holding the count.
	data := []byte{0xa0, 201, 0x00, 0x02, 0x12, 0x34, 0x56, 0x78, 0x00, 0x00, 0x00, 0x04}

	h, n, err := ParseCommonHeader(data)
	require.NoError(t, err)
	assert.True(t, h.Padding)
	assert.Equal(t, 4, h.PayloadSizeBytes)
	assert.Equal(t, 4, h.PaddingBytes)
	assert.Equal(t, 12, n)
	assert.Equal(t, 12, h.BlockSize())
}

func TestParseCommonHeader_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncatedHeader},
		{"three bytes", []byte{0x80, 201, 0x00}, ErrTruncatedHeader},
		{"version 1", []byte{0x40, 201, 0x00, 0x00}, ErrInvalidVersion},
		{"version 3", []byte{0xc0, 201, 0x00, 0x00}, ErrInvalidVersion},
		{"length exceeds buffer", []byte{0x80, 201, 0x00, 0x01, 0x12, 0x34}, ErrInvalidLength},
		{"length exceeds buffer by a word", firPacket[:16], ErrInvalidLength},
		{"padding on empty packet", []byte{0xa0, 201, 0x00, 0x00}, ErrInvalidPadding},
		{"zero padding count", []byte{0xa0, 201, 0x00, 0x01, 0x12, 0x34, 0x56, 0x00}, ErrInvalidPadding},
		{"padding exceeds payload", []byte{0xa0, 201, 0x00, 0x01, 0x12, 0x34, 0x56, 0x08}, ErrInvalidPadding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := ParseCommonHeader(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			assert.Equal(t, 0, n)
		})
	}
}

func TestWriteCommonHeader(t *testing.T) {
	b := make([]byte, 4)
	WriteCommonHeader(b, FormatRPSI, TypePSFB, 4)
	assert.Equal(t, []byte{0x83, 0xce, 0x00, 0x04}, b)

	WriteCommonHeader(b, 31, 200, 0xffff)
	assert.Equal(t, []byte{0x9f, 0xc8, 0xff, 0xff}, b)
}

func TestWriteCommonHeader_RoundTrip(t *testing.T) {
	b := make([]byte, 12)
	WriteCommonHeader(b, FormatPLI, TypePSFB, HeaderLengthWords(len(b)))

	h, n, err := ParseCommonHeader(b)
	require.NoError(t, err)
	assert.Equal(t, FormatPLI, h.CountOrFormat)
	assert.Equal(t, TypePSFB, h.PacketType)
	assert.Equal(t, 8, h.PayloadSizeBytes)
	assert.Equal(t, len(b), n)
}

func TestWriteCommonHeader_ContractViolationsPanic(t *testing.T) {
	assert.Panics(t, func() { WriteCommonHeader(make([]byte, 4), 32, TypePSFB, 1) })
	assert.Panics(t, func() { WriteCommonHeader(make([]byte, 4), 1, TypePSFB, 0x10000) })
	assert.Panics(t, func() { WriteCommonHeader(make([]byte, 4), 1, TypePSFB, -1) })
	assert.Panics(t, func() { WriteCommonHeader(make([]byte, 3), 1, TypePSFB, 1) })
}

func TestHeaderLengthWords(t *testing.T) {
	tests := []struct {
		blockLength int
		want        int
	}{
		{4, 0},
		{8, 1},
		{12, 2},
		{20, 4},
		{21, 5},
		{24, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HeaderLengthWords(tt.blockLength), "block length %d", tt.blockLength)
	}
}

func TestFeedbackPrefix(t *testing.T) {
	p := ParseFeedbackPrefix(firPacket[headerLength:])
	assert.Equal(t, uint32(0x12345678), p.SenderSSRC)
	assert.Equal(t, uint32(0), p.MediaSSRC)

	b := make([]byte, 8)
	FeedbackPrefix{SenderSSRC: 0x01020304, MediaSSRC: 0xa0b0c0d0}.MarshalTo(b)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0xa0, 0xb0, 0xc0, 0xd0}, b)
	assert.Equal(t, FeedbackPrefix{SenderSSRC: 0x01020304, MediaSSRC: 0xa0b0c0d0}, ParseFeedbackPrefix(b))
}

func TestFeedbackPrefix_ShortBufferPanics(t *testing.T) {
	assert.Panics(t, func() { ParseFeedbackPrefix(make([]byte, 7)) })
	assert.Panics(t, func() { FeedbackPrefix{}.MarshalTo(make([]byte, 7)) })
}
