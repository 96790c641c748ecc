package interceptor

import (
	"github.com/pion/interceptor"
)

// RTCP feedback types and parameters as they appear in SDP a=rtcp-fb lines
// and in StreamInfo.RTCPFeedback.
const (
	// FeedbackTypeCCM is the codec control message feedback type (RFC 5104).
	FeedbackTypeCCM = "ccm"
	// FeedbackTypeNACK is the generic NACK feedback type (RFC 4585).
	FeedbackTypeNACK = "nack"

	// ParameterFIR selects Full Intra Request with the ccm type.
	ParameterFIR = "fir"
	// ParameterPLI selects Picture Loss Indication with the nack type.
	ParameterPLI = "pli"
	// ParameterRPSI selects Reference Picture Selection Indication with the nack type.
	ParameterRPSI = "rpsi"
)

// FeedbackCapabilities is the subset of feedback messages a remote stream
// negotiated.
type FeedbackCapabilities struct {
	FIR  bool
	PLI  bool
	RPSI bool
}

// Any reports whether any key-frame or reference feedback was negotiated.
func (c FeedbackCapabilities) Any() bool {
	return c.FIR || c.PLI || c.RPSI
}

// NegotiatedFeedback extracts the feedback capabilities from the list of
// negotiated RTCP feedback entries.
//
// A stream with no feedback entries at all is assumed to accept everything,
// since StreamInfo carries no feedback when it was built outside of SDP
// negotiation.
func NegotiatedFeedback(fbs []interceptor.RTCPFeedback) FeedbackCapabilities {
	if len(fbs) == 0 {
		return FeedbackCapabilities{FIR: true, PLI: true, RPSI: true}
	}

	var c FeedbackCapabilities
	for _, fb := range fbs {
		switch {
		case fb.Type == FeedbackTypeCCM && fb.Parameter == ParameterFIR:
			c.FIR = true
		case fb.Type == FeedbackTypeNACK && fb.Parameter == ParameterPLI:
			c.PLI = true
		case fb.Type == FeedbackTypeNACK && fb.Parameter == ParameterRPSI:
			c.RPSI = true
		}
	}
	return c
}
