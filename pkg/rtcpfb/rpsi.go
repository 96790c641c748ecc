package rtcpfb

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/32bitkid/bitreader"
	"github.com/pkg/errors"
)

const (
	// rpsiFixedLength covers the padding-bit count and payload type octets.
	rpsiFixedLength = 2

	// maxNativeStringLength is the number of 7-bit groups needed for a
	// 64-bit picture id.
	maxNativeStringLength = 10

	// maxPayloadType is the largest RTP payload type.
	maxPayloadType = 0x7f
)

// Rpsi is a Reference Picture Selection Indication (RFC 4585 Section 6.3.3).
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|      PB       |0| Payload Type|    Native RPSI bit string     |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   defined per codec          ...                | Padding (0) |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// The picture id is carried as a native string: 7-bit groups, most
// significant first, with the top bit of every byte but the last set.
// PB counts the zero padding bits that align the FCI to 32 bits.
type Rpsi struct {
	SenderSSRC  uint32
	MediaSSRC   uint32
	PayloadType uint8
	PictureID   uint64
}

// ParseRpsi decodes the payload of an RPSI packet. h must already identify
// the packet as PSFB with FMT 3.
//
// The padding-bit count is checked against the packet length: it must be
// whole bytes, at most 3 of them, and leave at least one byte of native
// string. The native string must end exactly where the padding begins.
func ParseRpsi(h CommonHeader, payload []byte) (*Rpsi, error) {
	checkType(h, TypePSFB, FormatRPSI, "RPSI")

	size := h.PayloadSizeBytes
	if size < commonFeedbackLength+rpsiFixedLength {
		return nil, errors.Wrapf(ErrInvalidLength, "rpsi payload of %d bytes", size)
	}
	if len(payload) < size {
		return nil, errors.Wrapf(ErrInvalidLength, "rpsi payload truncated to %d bytes", len(payload))
	}

	prefix := ParseFeedbackPrefix(payload)
	paddingBits := payload[commonFeedbackLength]
	if paddingBits%8 != 0 {
		return nil, errors.Wrapf(ErrInvalidPadding, "%d padding bits", paddingBits)
	}
	paddingBytes := int(paddingBits / 8)
	contentBytes := size - commonFeedbackLength - rpsiFixedLength - paddingBytes
	if paddingBytes > 3 {
		return nil, errors.Wrapf(ErrInvalidLength, "%d padding bytes", paddingBytes)
	}
	if contentBytes <= 0 {
		return nil, errors.Wrapf(ErrInvalidLength,
			"%d padding bytes leave no native string in %d byte payload", paddingBytes, size)
	}

	start := commonFeedbackLength + rpsiFixedLength
	id, err := readNativeString(payload[start : start+contentBytes])
	if err != nil {
		return nil, err
	}

	return &Rpsi{
		SenderSSRC:  prefix.SenderSSRC,
		MediaSSRC:   prefix.MediaSSRC,
		PayloadType: payload[commonFeedbackLength+1] & maxPayloadType,
		PictureID:   id,
	}, nil
}

// readNativeString decodes a native string that must fill content exactly.
func readNativeString(content []byte) (uint64, error) {
	br := bitreader.NewReader(bytes.NewReader(content))

	var id uint64
	for i := 0; i < len(content); i++ {
		if i == maxNativeStringLength {
			return 0, errors.Wrapf(ErrInvalidNativeString, "more than %d groups", maxNativeStringLength)
		}
		more, err := br.Read1()
		if err != nil {
			return 0, errors.Wrap(ErrInvalidNativeString, err.Error())
		}
		group, err := br.Read8(7)
		if err != nil {
			return 0, errors.Wrap(ErrInvalidNativeString, err.Error())
		}
		if id>>(64-7) != 0 {
			return 0, errors.Wrap(ErrInvalidNativeString, "picture id overflows 64 bits")
		}
		id = id<<7 | uint64(group)

		if !more {
			if rest := len(content) - i - 1; rest != 0 {
				return 0, errors.Wrapf(ErrInvalidNativeString, "%d bytes after terminator", rest)
			}
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidNativeString, "no terminator in %d bytes", len(content))
}

// nativeStringLength returns the number of bytes needed to encode id.
func nativeStringLength(id uint64) int {
	n := (bits.Len64(id) + 6) / 7
	if n == 0 {
		return 1
	}
	return n
}

// putNativeString writes id as a native string into b and returns the number
// of bytes written.
func putNativeString(b []byte, id uint64) int {
	n := nativeStringLength(id)
	for i := 0; i < n; i++ {
		group := byte(id>>(7*uint(n-1-i))) & 0x7f
		if i < n-1 {
			group |= 0x80
		}
		b[i] = group
	}
	return n
}

// rpsiPaddingBytes returns the zero bytes needed to align an FCI holding a
// native string of n bytes.
func rpsiPaddingBytes(n int) int {
	return (4 - (rpsiFixedLength+n)%4) % 4
}

// BlockLength returns the wire size of the packet.
func (r *Rpsi) BlockLength() int {
	n := nativeStringLength(r.PictureID)
	return headerLength + commonFeedbackLength + rpsiFixedLength + n + rpsiPaddingBytes(n)
}

func (r *Rpsi) marshalTo(b []byte) {
	if r.PayloadType > maxPayloadType {
		panic(fmt.Sprintf("rtcpfb: RPSI payload type %d exceeds %d", r.PayloadType, maxPayloadType))
	}
	length := r.BlockLength()
	WriteCommonHeader(b, FormatRPSI, TypePSFB, HeaderLengthWords(length))
	FeedbackPrefix{SenderSSRC: r.SenderSSRC, MediaSSRC: r.MediaSSRC}.MarshalTo(b[headerLength:])

	fci := b[headerLength+commonFeedbackLength : length]
	n := putNativeString(fci[rpsiFixedLength:], r.PictureID)
	pad := rpsiPaddingBytes(n)
	fci[0] = byte(pad * 8)
	fci[1] = r.PayloadType
	for i := rpsiFixedLength + n; i < len(fci); i++ {
		fci[i] = 0
	}
}

// Marshal encodes the packet. It panics if PayloadType exceeds 127.
func (r *Rpsi) Marshal() ([]byte, error) {
	return marshalPacket(r), nil
}

// MarshalSize returns the wire size of the packet.
func (r *Rpsi) MarshalSize() int {
	return r.BlockLength()
}

// Unmarshal decodes a single RPSI packet, header included.
func (r *Rpsi) Unmarshal(data []byte) error {
	h, payload, err := unmarshalOne(data, TypePSFB, FormatRPSI)
	if err != nil {
		return err
	}
	parsed, err := ParseRpsi(h, payload)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// DestinationSSRC returns the media source the indication refers to.
func (r *Rpsi) DestinationSSRC() []uint32 {
	return []uint32{r.MediaSSRC}
}

func (r *Rpsi) String() string {
	return fmt.Sprintf("RPSI from %#x\n\tmedia=%#x pt=%d picture=%#x",
		r.SenderSSRC, r.MediaSSRC, r.PayloadType, r.PictureID)
}
