package rtcpfb

import (
	"fmt"

	"github.com/pkg/errors"
)

// Pli is a Picture Loss Indication (RFC 4585 Section 6.3.1). It carries no
// FCI; the media SSRC names the source that should send a key frame.
type Pli struct {
	SenderSSRC uint32
	MediaSSRC  uint32
}

// ParsePli decodes the payload of a PLI packet. h must already identify the
// packet as PSFB with FMT 1. Bytes beyond the prefix are ignored.
func ParsePli(h CommonHeader, payload []byte) (*Pli, error) {
	checkType(h, TypePSFB, FormatPLI, "PLI")
	if h.PayloadSizeBytes < commonFeedbackLength || len(payload) < commonFeedbackLength {
		return nil, errors.Wrapf(ErrInvalidLength, "pli payload of %d bytes", h.PayloadSizeBytes)
	}
	prefix := ParseFeedbackPrefix(payload)
	return &Pli{SenderSSRC: prefix.SenderSSRC, MediaSSRC: prefix.MediaSSRC}, nil
}

// BlockLength returns the wire size of the packet.
func (p *Pli) BlockLength() int {
	return headerLength + commonFeedbackLength
}

func (p *Pli) marshalTo(b []byte) {
	WriteCommonHeader(b, FormatPLI, TypePSFB, HeaderLengthWords(p.BlockLength()))
	FeedbackPrefix{SenderSSRC: p.SenderSSRC, MediaSSRC: p.MediaSSRC}.MarshalTo(b[headerLength:])
}

// Marshal encodes the packet.
func (p *Pli) Marshal() ([]byte, error) {
	return marshalPacket(p), nil
}

// MarshalSize returns the wire size of the packet.
func (p *Pli) MarshalSize() int {
	return p.BlockLength()
}

// Unmarshal decodes a single PLI packet, header included.
func (p *Pli) Unmarshal(data []byte) error {
	h, payload, err := unmarshalOne(data, TypePSFB, FormatPLI)
	if err != nil {
		return err
	}
	parsed, err := ParsePli(h, payload)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// DestinationSSRC returns the media source that lost a picture.
func (p *Pli) DestinationSSRC() []uint32 {
	return []uint32{p.MediaSSRC}
}

func (p *Pli) String() string {
	return fmt.Sprintf("PLI from %#x\n\tmedia=%#x", p.SenderSSRC, p.MediaSSRC)
}
