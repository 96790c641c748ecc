package rtcpfb

import (
	"math"
	"testing"

	"github.com/pion/rtcp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rpsiPacket = []byte{
	0x83, 206, 0x00, 0x04,
	0x12, 0x34, 0x56, 0x78,
	0x23, 0x45, 0x67, 0x89,
	0x18, 0x64, 0xc1, 0xc2,
	0x43, 0x00, 0x00, 0x00,
}

// rpsiPaddingOffset is the offset of the padding-bit count in a whole packet.
const rpsiPaddingOffset = headerLength + commonFeedbackLength

func parseRpsiBytes(t *testing.T, data []byte) (*Rpsi, error) {
	t.Helper()
	h, _, err := ParseCommonHeader(data)
	require.NoError(t, err)
	return ParseRpsi(h, data[headerLength:])
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

func TestParseRpsi_Literal(t *testing.T) {
	rpsi, err := parseRpsiBytes(t, rpsiPacket)
	require.NoError(t, err)

	assert.Equal(t, uint32(0x12345678), rpsi.SenderSSRC)
	assert.Equal(t, uint32(0x23456789), rpsi.MediaSSRC)
	assert.Equal(t, uint8(100), rpsi.PayloadType)
	assert.Equal(t, uint64(0x106143), rpsi.PictureID)
}

func TestRpsi_BuildLiteral(t *testing.T) {
	rpsi := &Rpsi{
		SenderSSRC:  0x12345678,
		MediaSSRC:   0x23456789,
		PayloadType: 100,
		PictureID:   0x106143,
	}
	data, err := rpsi.Marshal()
	require.NoError(t, err)
	assert.Equal(t, rpsiPacket, data)
}

func TestNativeString_Length(t *testing.T) {
	tests := []struct {
		id      uint64
		encoded []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{0x41, []byte{0x41}},
		{0x7f, []byte{0x7f}},
		{0x81, []byte{0x81, 0x01}},
		{0x3fff, []byte{0xff, 0x7f}},
		{0x4000, []byte{0x81, 0x80, 0x00}},
		{0x102040, []byte{0xc0, 0xc0, 0x40}},
		{0x106143, []byte{0xc1, 0xc2, 0x43}},
		{0x84161c2, []byte{0xc2, 0x85, 0xc3, 0x42}},
		{math.MaxUint64, []byte{0x81, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}},
	}

	for _, tt := range tests {
		assert.Equal(t, len(tt.encoded), nativeStringLength(tt.id), "length of %#x", tt.id)

		b := make([]byte, maxNativeStringLength)
		n := putNativeString(b, tt.id)
		assert.Equal(t, tt.encoded, b[:n], "encoding of %#x", tt.id)

		id, err := readNativeString(tt.encoded)
		require.NoError(t, err, "decoding %#x", tt.id)
		assert.Equal(t, tt.id, id)
	}
}

func TestRpsi_RoundTrip(t *testing.T) {
	ids := []uint64{0, 1, 0x41, 0x81, 0x102040, 0x106143, 0x84161c2, 1 << 35, 1<<63 - 1, math.MaxUint64}
	payloadTypes := []uint8{0, 1, 96, 100, 127}

	for _, id := range ids {
		for _, pt := range payloadTypes {
			rpsi := &Rpsi{SenderSSRC: 0xdeadbeef, MediaSSRC: 0xfeedface, PayloadType: pt, PictureID: id}
			data, err := rpsi.Marshal()
			require.NoError(t, err)

			assert.Zero(t, len(data)%4, "packet must be word aligned for id %#x", id)
			paddingBits := data[rpsiPaddingOffset]
			assert.Zero(t, paddingBits%8)
			assert.Less(t, paddingBits, uint8(32))

			parsed, err := parseRpsiBytes(t, data)
			require.NoError(t, err, "id %#x pt %d", id, pt)
			assert.Equal(t, rpsi, parsed)
		}
	}
}

func TestParseRpsi_ShortenedLengthFails(t *testing.T) {
	data := cloneBytes(rpsiPacket)
	data[3]--

	_, err := parseRpsiBytes(t, data[:len(data)-4])
	assert.True(t, errors.Is(err, ErrInvalidLength), "got %v", err)
}

func TestParseRpsi_FractionalPaddingFails(t *testing.T) {
	saved := rpsiPacket[rpsiPaddingOffset]
	for i := byte(1); i <= 7; i++ {
		data := cloneBytes(rpsiPacket)
		data[rpsiPaddingOffset] = saved + i

		_, err := parseRpsiBytes(t, data)
		assert.True(t, errors.Is(err, ErrInvalidPadding), "padding %d: got %v", saved+i, err)
	}
}

func TestParseRpsi_TooBigPaddingFails(t *testing.T) {
	rpsi := &Rpsi{SenderSSRC: 1, MediaSSRC: 2, PayloadType: 96, PictureID: 1}
	data, err := rpsi.Marshal()
	require.NoError(t, err)
	require.Equal(t, byte(8), data[rpsiPaddingOffset])

	data[rpsiPaddingOffset] += 8
	_, err = parseRpsiBytes(t, data)
	assert.True(t, errors.Is(err, ErrInvalidLength), "got %v", err)
}

func TestParseRpsi_PaddingOfAWholeWordFails(t *testing.T) {
	data := cloneBytes(rpsiPacket)
	data[rpsiPaddingOffset] = 32

	_, err := parseRpsiBytes(t, data)
	assert.True(t, errors.Is(err, ErrInvalidLength), "got %v", err)
}

func rpsiWithFCI(fci ...byte) []byte {
	data := make([]byte, headerLength+commonFeedbackLength+len(fci))
	WriteCommonHeader(data, FormatRPSI, TypePSFB, HeaderLengthWords(len(data)))
	FeedbackPrefix{SenderSSRC: 1, MediaSSRC: 2}.MarshalTo(data[headerLength:])
	copy(data[headerLength+commonFeedbackLength:], fci)
	return data
}

func TestParseRpsi_InvalidNativeString(t *testing.T) {
	tests := []struct {
		name string
		fci  []byte
	}{
		{"no terminator", []byte{0x00, 0x64, 0xc1, 0xc2}},
		{"bytes after terminator", []byte{0x00, 0x64, 0x41, 0x42}},
		{"garbage before padding", []byte{0x08, 0x64, 0x81, 0x01, 0x55, 0x00, 0x00, 0x00}},
		{"overflows 64 bits", []byte{0x00, 0x64, 0x83, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}},
		{"more than ten groups", []byte{
			0x00, 0x64,
			0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRpsiBytes(t, rpsiWithFCI(tt.fci...))
			assert.True(t, errors.Is(err, ErrInvalidNativeString), "got %v", err)
		})
	}
}

func TestParseRpsi_NonMinimalEncodingAccepted(t *testing.T) {
	rpsi, err := parseRpsiBytes(t, rpsiWithFCI(0x00, 0x64, 0x80, 0x41))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x41), rpsi.PictureID)
}

func TestParseRpsi_PayloadTypeMasked(t *testing.T) {
	data := cloneBytes(rpsiPacket)
	data[rpsiPaddingOffset+1] = 0x80 | 100

	rpsi, err := parseRpsiBytes(t, data)
	require.NoError(t, err)
	assert.Equal(t, uint8(100), rpsi.PayloadType)
}

func TestParseRpsi_PayloadTooShort(t *testing.T) {
	data := make([]byte, headerLength+commonFeedbackLength)
	WriteCommonHeader(data, FormatRPSI, TypePSFB, HeaderLengthWords(len(data)))

	_, err := parseRpsiBytes(t, data)
	assert.True(t, errors.Is(err, ErrInvalidLength), "got %v", err)
}

func TestRpsi_ContractViolationsPanic(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = (&Rpsi{PayloadType: 128}).Marshal()
	})

	h := CommonHeader{Version: 2, PacketType: TypePSFB, CountOrFormat: FormatFIR, PayloadSizeBytes: 16}
	assert.Panics(t, func() { _, _ = ParseRpsi(h, make([]byte, 16)) })
}

func TestRpsi_Unmarshal(t *testing.T) {
	var rpsi Rpsi
	require.NoError(t, rpsi.Unmarshal(rpsiPacket))
	assert.Equal(t, uint64(0x106143), rpsi.PictureID)
	assert.Equal(t, []uint32{0x23456789}, rpsi.DestinationSSRC())

	err := rpsi.Unmarshal(firPacket)
	assert.True(t, errors.Is(err, ErrWrongType), "got %v", err)
}

func TestRpsi_PionAcceptsBytes(t *testing.T) {
	rpsi := &Rpsi{SenderSSRC: 1, MediaSSRC: 2, PayloadType: 96, PictureID: math.MaxUint64}
	data, err := rpsi.Marshal()
	require.NoError(t, err)

	packets, err := rtcp.Unmarshal(data)
	require.NoError(t, err)
	assert.Len(t, packets, 1)
}

func BenchmarkParseRpsi(b *testing.B) {
	h, _, err := ParseCommonHeader(rpsiPacket)
	if err != nil {
		b.Fatal(err)
	}
	payload := rpsiPacket[headerLength:]

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseRpsi(h, payload); err != nil {
			b.Fatal(err)
		}
	}
}
