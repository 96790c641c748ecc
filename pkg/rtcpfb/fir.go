package rtcpfb

import (
	"fmt"
	"strings"

	"github.com/nareix/bits/pio"
	"github.com/pkg/errors"
)

// firRequestLength is the size of one FIR FCI entry.
const firRequestLength = 8

// FirRequest asks the sender of one media source for a decoder refresh.
type FirRequest struct {
	// SSRC is the media source the request applies to.
	SSRC uint32
	// SeqNr is the command sequence number. It is incremented for every new
	// request to the same source and kept for repetitions.
	SeqNr uint8
}

// Fir is a Full Intra Request (RFC 5104 Section 4.3.1).
//
//	FCI, repeated once per request:
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                              SSRC                             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| Seq nr.       |    Reserved = 0                               |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// The media source SSRC of the feedback prefix is unused and always 0;
// targets are named by the requests. Order of requests is kept and
// duplicates are legal.
type Fir struct {
	SenderSSRC uint32
	Requests   []FirRequest
}

// NewFir returns an empty FIR sent by senderSSRC.
func NewFir(senderSSRC uint32) *Fir {
	return &Fir{SenderSSRC: senderSSRC}
}

// AddRequest appends a request and returns f for chaining.
func (f *Fir) AddRequest(ssrc uint32, seqNr uint8) *Fir {
	f.Requests = append(f.Requests, FirRequest{SSRC: ssrc, SeqNr: seqNr})
	return f
}

// ParseFir decodes the payload of a FIR packet. h must already identify the
// packet as PSFB with FMT 4.
func ParseFir(h CommonHeader, payload []byte) (*Fir, error) {
	checkType(h, TypePSFB, FormatFIR, "FIR")

	size := h.PayloadSizeBytes
	if size < commonFeedbackLength+firRequestLength {
		return nil, errors.Wrapf(ErrInvalidLength, "fir payload of %d bytes", size)
	}
	if (size-commonFeedbackLength)%firRequestLength != 0 {
		return nil, errors.Wrapf(ErrInvalidLength,
			"fir fci of %d bytes is not a multiple of %d", size-commonFeedbackLength, firRequestLength)
	}
	if len(payload) < size {
		return nil, errors.Wrapf(ErrInvalidLength, "fir payload truncated to %d bytes", len(payload))
	}

	prefix := ParseFeedbackPrefix(payload)
	fci := payload[commonFeedbackLength:size]
	f := &Fir{
		SenderSSRC: prefix.SenderSSRC,
		Requests:   make([]FirRequest, 0, len(fci)/firRequestLength),
	}
	for i := 0; i < len(fci); i += firRequestLength {
		f.Requests = append(f.Requests, FirRequest{
			SSRC:  pio.U32BE(fci[i:]),
			SeqNr: fci[i+4],
		})
	}
	return f, nil
}

// BlockLength returns the wire size of the packet.
func (f *Fir) BlockLength() int {
	return headerLength + commonFeedbackLength + firRequestLength*len(f.Requests)
}

func (f *Fir) marshalTo(b []byte) {
	if len(f.Requests) == 0 {
		panic("rtcpfb: FIR built without requests")
	}
	length := f.BlockLength()
	WriteCommonHeader(b, FormatFIR, TypePSFB, HeaderLengthWords(length))
	FeedbackPrefix{SenderSSRC: f.SenderSSRC}.MarshalTo(b[headerLength:])

	fci := b[headerLength+commonFeedbackLength : length]
	for i, req := range f.Requests {
		entry := fci[i*firRequestLength:]
		pio.PutU32BE(entry, req.SSRC)
		entry[4] = req.SeqNr
		entry[5], entry[6], entry[7] = 0, 0, 0
	}
}

// Marshal encodes the packet. It panics if the FIR has no requests.
func (f *Fir) Marshal() ([]byte, error) {
	return marshalPacket(f), nil
}

// MarshalSize returns the wire size of the packet.
func (f *Fir) MarshalSize() int {
	return f.BlockLength()
}

// Unmarshal decodes a single FIR packet, header included.
func (f *Fir) Unmarshal(data []byte) error {
	h, payload, err := unmarshalOne(data, TypePSFB, FormatFIR)
	if err != nil {
		return err
	}
	parsed, err := ParseFir(h, payload)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

// DestinationSSRC returns the media sources the requests are addressed to.
func (f *Fir) DestinationSSRC() []uint32 {
	ssrcs := make([]uint32, 0, len(f.Requests))
	for _, req := range f.Requests {
		ssrcs = append(ssrcs, req.SSRC)
	}
	return ssrcs
}

func (f *Fir) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FIR from %#x", f.SenderSSRC)
	for _, req := range f.Requests {
		fmt.Fprintf(&sb, "\n\tssrc=%#x seq=%d", req.SSRC, req.SeqNr)
	}
	return sb.String()
}
