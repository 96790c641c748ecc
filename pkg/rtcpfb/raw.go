package rtcpfb

import (
	"fmt"

	"github.com/pion/rtcp"
	"github.com/pkg/errors"
)

// Raw is any RTCP packet this package does not model itself: sender and
// receiver reports, SDES, BYE, transport feedback and so on. It keeps the
// payload so it can be forwarded unchanged or decoded by pion/rtcp.
type Raw struct {
	Header  CommonHeader
	Payload []byte
}

func parseRaw(h CommonHeader, payload []byte) *Raw {
	return &Raw{
		Header:  h,
		Payload: append([]byte(nil), payload[:h.PayloadSizeBytes]...),
	}
}

func (r *Raw) paddingBytes() int {
	return (4 - (headerLength+len(r.Payload))%4) % 4
}

// BlockLength returns the wire size of the packet. Payloads that are not a
// whole number of words get RTCP padding.
func (r *Raw) BlockLength() int {
	return headerLength + len(r.Payload) + r.paddingBytes()
}

func (r *Raw) marshalTo(b []byte) {
	length := r.BlockLength()
	WriteCommonHeader(b, r.Header.CountOrFormat, r.Header.PacketType, HeaderLengthWords(length))
	n := copy(b[headerLength:], r.Payload)
	if pad := r.paddingBytes(); pad > 0 {
		b[0] |= 0x20
		for i := headerLength + n; i < length; i++ {
			b[i] = 0
		}
		b[length-1] = byte(pad)
	}
}

// Marshal encodes the packet.
func (r *Raw) Marshal() ([]byte, error) {
	return marshalPacket(r), nil
}

// MarshalSize returns the wire size of the packet.
func (r *Raw) MarshalSize() int {
	return r.BlockLength()
}

// Unmarshal stores a single RTCP packet of any type, header included.
func (r *Raw) Unmarshal(data []byte) error {
	h, n, err := ParseCommonHeader(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return errors.Wrapf(ErrInvalidLength, "%d trailing bytes", len(data)-n)
	}
	*r = *parseRaw(h, data[headerLength:])
	return nil
}

// DestinationSSRC decodes the packet with pion/rtcp and returns its
// destinations, or nil when pion cannot decode it either.
func (r *Raw) DestinationSSRC() []uint32 {
	p, err := r.Decode()
	if err != nil {
		return nil
	}
	return p.DestinationSSRC()
}

// Decode hands the packet to pion/rtcp, which models the report and
// transport feedback types.
func (r *Raw) Decode() (rtcp.Packet, error) {
	packets, err := rtcp.Unmarshal(marshalPacket(r))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", r.Header.String())
	}
	if len(packets) != 1 {
		return nil, errors.Errorf("decode %s: got %d packets", r.Header.String(), len(packets))
	}
	return packets[0], nil
}

func (r *Raw) String() string {
	return fmt.Sprintf("RTCP pt=%d fmt=%d (%d payload bytes)",
		r.Header.PacketType, r.Header.CountOrFormat, len(r.Payload))
}
