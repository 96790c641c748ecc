package rtcpfb

import (
	"fmt"

	"github.com/nareix/bits/pio"
	"github.com/pkg/errors"
)

// CommonHeader is the 4-byte header that starts every RTCP packet.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|V=2|P|  RC/FMT |       PT      |             length            |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type CommonHeader struct {
	// Version is the RTP version, always 2 for a parsed header.
	Version uint8

	// Padding reports whether the packet ends with padding octets.
	Padding bool

	// CountOrFormat is the 5-bit field following the padding bit.
	// It is a report count for SR/RR and a message type (FMT) for feedback.
	CountOrFormat uint8

	// PacketType identifies the RTCP packet type.
	PacketType uint8

	// LengthWords is the packet length in 32-bit words minus one,
	// as carried on the wire.
	LengthWords uint16

	// PayloadSizeBytes is the number of bytes following the header,
	// excluding trailing padding.
	PayloadSizeBytes int

	// PaddingBytes is the number of padding octets at the end of the packet.
	PaddingBytes int
}

// BlockSize returns the total wire size of the packet described by h.
func (h CommonHeader) BlockSize() int {
	return headerLength + h.PayloadSizeBytes + h.PaddingBytes
}

// String returns a short human readable form of the header.
func (h CommonHeader) String() string {
	return fmt.Sprintf("rtcp{pt=%d fmt=%d len=%d payload=%d pad=%d}",
		h.PacketType, h.CountOrFormat, h.LengthWords, h.PayloadSizeBytes, h.PaddingBytes)
}

// IsFeedback reports whether the header belongs to an RTPFB or PSFB packet.
func (h CommonHeader) IsFeedback() bool {
	return h.PacketType == TypeRTPFB || h.PacketType == TypePSFB
}

// ParseCommonHeader parses the RTCP header at the start of buf and validates
// that the declared packet fits in buf. It returns the header and the number
// of bytes the whole packet occupies, so the next packet of a compound
// packet starts at buf[consumed:].
func ParseCommonHeader(buf []byte) (CommonHeader, int, error) {
	var h CommonHeader
	if len(buf) < headerLength {
		return h, 0, errors.Wrapf(ErrTruncatedHeader, "have %d bytes", len(buf))
	}

	h.Version = buf[0] >> 6
	if h.Version != rtcpVersion {
		return h, 0, errors.Wrapf(ErrInvalidVersion, "version %d", h.Version)
	}
	h.Padding = buf[0]&0x20 != 0
	h.CountOrFormat = buf[0] & maxCountOrFormat
	h.PacketType = buf[1]
	h.LengthWords = pio.U16BE(buf[2:])

	size := (int(h.LengthWords) + 1) * 4
	if size > len(buf) {
		return h, 0, errors.Wrapf(ErrInvalidLength,
			"declared %d bytes, have %d", size, len(buf))
	}
	h.PayloadSizeBytes = size - headerLength

	if h.Padding {
		if h.PayloadSizeBytes == 0 {
			return h, 0, errors.Wrap(ErrInvalidPadding, "padding flag set on empty packet")
		}
		pad := int(buf[size-1])
		if pad == 0 || pad > h.PayloadSizeBytes {
			return h, 0, errors.Wrapf(ErrInvalidPadding,
				"%d padding bytes in %d byte payload", pad, h.PayloadSizeBytes)
		}
		h.PaddingBytes = pad
		h.PayloadSizeBytes -= pad
	}

	return h, size, nil
}

// WriteCommonHeader writes an RTCP header without padding into b[0:4].
// Callers guarantee countOrFormat fits in 5 bits, lengthWords in 16 bits,
// and b holds at least 4 bytes; violations panic.
func WriteCommonHeader(b []byte, countOrFormat, packetType uint8, lengthWords int) {
	if countOrFormat > maxCountOrFormat {
		panic(fmt.Sprintf("rtcpfb: count/format %d does not fit in 5 bits", countOrFormat))
	}
	if lengthWords < 0 || lengthWords > maxLengthWords {
		panic(fmt.Sprintf("rtcpfb: length %d words out of range", lengthWords))
	}
	if len(b) < headerLength {
		panic(fmt.Sprintf("rtcpfb: header needs %d bytes, have %d", headerLength, len(b)))
	}
	b[0] = rtcpVersion<<6 | countOrFormat
	b[1] = packetType
	pio.PutU16BE(b[2:], uint16(lengthWords))
}

// HeaderLengthWords converts a block length in bytes to the value of the
// header length field: the length in 32-bit words minus one.
func HeaderLengthWords(blockLength int) int {
	return (blockLength+3)/4 - 1
}
