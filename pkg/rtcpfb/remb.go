package rtcpfb

import (
	"bytes"
	"fmt"
	"math"

	"github.com/pion/rtcp"
	"github.com/pkg/errors"
)

// rembIdentifier marks an application layer feedback message as REMB.
var rembIdentifier = []byte("REMB")

// Remb is a Receiver Estimated Maximum Bitrate message, the application
// layer feedback (PSFB FMT 15) used by receivers to cap a sender's bitrate.
// This is a convenience wrapper around pion/rtcp.ReceiverEstimatedMaximumBitrate,
// which handles the mantissa+exponent bitrate encoding:
//   - 6-bit exponent
//   - 18-bit mantissa
type Remb struct {
	// SenderSSRC is the SSRC of the sender of this REMB packet (the receiver).
	SenderSSRC uint32

	// Bitrate is the estimated maximum bitrate in bits per second.
	Bitrate uint64

	// SSRCs is the list of media source SSRCs this estimate applies to.
	SSRCs []uint32
}

// BuildREMB creates a REMB RTCP packet from the given parameters.
// Returns the marshaled packet bytes ready to send.
//
// Parameters:
//   - senderSSRC: SSRC of this RTCP packet sender (receiver endpoint)
//   - bitrateBps: Estimated maximum bitrate in bits per second
//   - mediaSSRCs: List of media SSRCs this estimate applies to
func BuildREMB(senderSSRC uint32, bitrateBps uint64, mediaSSRCs []uint32) ([]byte, error) {
	pkt := &rtcp.ReceiverEstimatedMaximumBitrate{
		SenderSSRC: senderSSRC,
		Bitrate:    float32(bitrateBps),
		SSRCs:      mediaSSRCs,
	}
	return pkt.Marshal()
}

// ParseREMB parses a REMB packet from raw bytes, header included.
func ParseREMB(data []byte) (*Remb, error) {
	pkt := &rtcp.ReceiverEstimatedMaximumBitrate{}
	if err := pkt.Unmarshal(data); err != nil {
		return nil, errors.Wrap(ErrInvalidLength, err.Error())
	}
	return &Remb{
		SenderSSRC: pkt.SenderSSRC,
		Bitrate:    rembBitrate(pkt.Bitrate),
		SSRCs:      pkt.SSRCs,
	}, nil
}

// rembBitrate converts a decoded bitrate, saturating at math.MaxUint64.
// Exponents of 46 and above can exceed 64 bits.
func rembBitrate(bps float32) uint64 {
	if bps >= float32(1<<64) {
		return math.MaxUint64
	}
	return uint64(bps)
}

// ParseRemb decodes the payload of a REMB packet. h must already identify
// the packet as PSFB with FMT 15.
func ParseRemb(h CommonHeader, payload []byte) (*Remb, error) {
	checkType(h, TypePSFB, FormatREMB, "REMB")
	if len(payload) < h.PayloadSizeBytes {
		return nil, errors.Wrapf(ErrInvalidLength, "remb payload truncated to %d bytes", len(payload))
	}
	payload = payload[:h.PayloadSizeBytes]

	// pion wants the whole packet; rebuild the header without padding.
	data := make([]byte, headerLength+len(payload))
	WriteCommonHeader(data, h.CountOrFormat, h.PacketType, HeaderLengthWords(len(data)))
	copy(data[headerLength:], payload)
	return ParseREMB(data)
}

// isREMB reports whether an application layer feedback payload carries the
// REMB identifier.
func isREMB(payload []byte) bool {
	const offset = commonFeedbackLength
	return len(payload) >= offset+len(rembIdentifier) &&
		bytes.Equal(payload[offset:offset+len(rembIdentifier)], rembIdentifier)
}

func (r *Remb) pion() *rtcp.ReceiverEstimatedMaximumBitrate {
	return &rtcp.ReceiverEstimatedMaximumBitrate{
		SenderSSRC: r.SenderSSRC,
		Bitrate:    float32(r.Bitrate),
		SSRCs:      r.SSRCs,
	}
}

// BlockLength returns the wire size of the packet.
func (r *Remb) BlockLength() int {
	return headerLength + commonFeedbackLength + 8 + 4*len(r.SSRCs)
}

func (r *Remb) marshalTo(b []byte) {
	data, err := r.pion().Marshal()
	if err != nil {
		panic(fmt.Sprintf("rtcpfb: REMB cannot be built: %v", err))
	}
	copy(b, data)
}

// Marshal encodes the packet.
func (r *Remb) Marshal() ([]byte, error) {
	return BuildREMB(r.SenderSSRC, r.Bitrate, r.SSRCs)
}

// MarshalSize returns the wire size of the packet.
func (r *Remb) MarshalSize() int {
	return r.BlockLength()
}

// Unmarshal decodes a single REMB packet, header included.
func (r *Remb) Unmarshal(data []byte) error {
	parsed, err := ParseREMB(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// DestinationSSRC returns the media sources the estimate applies to.
func (r *Remb) DestinationSSRC() []uint32 {
	return r.SSRCs
}

func (r *Remb) String() string {
	return fmt.Sprintf("REMB from %#x\n\tbitrate=%d ssrcs=%#x", r.SenderSSRC, r.Bitrate, r.SSRCs)
}
