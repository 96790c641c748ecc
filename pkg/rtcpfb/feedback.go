package rtcpfb

import (
	"fmt"

	"github.com/nareix/bits/pio"
)

// FeedbackPrefix is the sender/media SSRC pair that opens every RTPFB and
// PSFB payload (RFC 4585 Section 6.1).
//
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                  SSRC of packet sender                        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                  SSRC of media source                         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type FeedbackPrefix struct {
	SenderSSRC uint32
	MediaSSRC  uint32
}

// ParseFeedbackPrefix decodes the first 8 bytes of b. Any 8 bytes are a
// valid prefix; b must hold at least that many.
func ParseFeedbackPrefix(b []byte) FeedbackPrefix {
	if len(b) < commonFeedbackLength {
		panic(fmt.Sprintf("rtcpfb: feedback prefix needs %d bytes, have %d", commonFeedbackLength, len(b)))
	}
	return FeedbackPrefix{
		SenderSSRC: pio.U32BE(b[0:]),
		MediaSSRC:  pio.U32BE(b[4:]),
	}
}

// MarshalTo writes the prefix into b[0:8].
func (p FeedbackPrefix) MarshalTo(b []byte) {
	if len(b) < commonFeedbackLength {
		panic(fmt.Sprintf("rtcpfb: feedback prefix needs %d bytes, have %d", commonFeedbackLength, len(b)))
	}
	pio.PutU32BE(b[0:], p.SenderSSRC)
	pio.PutU32BE(b[4:], p.MediaSSRC)
}
