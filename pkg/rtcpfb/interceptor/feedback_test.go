package interceptor

import (
	"testing"

	"github.com/pion/interceptor"
	"github.com/stretchr/testify/assert"
)

func TestNegotiatedFeedback(t *testing.T) {
	tests := []struct {
		name string
		fbs  []interceptor.RTCPFeedback
		want FeedbackCapabilities
	}{
		{
			name: "no feedback accepts everything",
			want: FeedbackCapabilities{FIR: true, PLI: true, RPSI: true},
		},
		{
			name: "typical video",
			fbs: []interceptor.RTCPFeedback{
				{Type: "goog-remb"},
				{Type: FeedbackTypeCCM, Parameter: ParameterFIR},
				{Type: FeedbackTypeNACK},
				{Type: FeedbackTypeNACK, Parameter: ParameterPLI},
			},
			want: FeedbackCapabilities{FIR: true, PLI: true},
		},
		{
			name: "rpsi only",
			fbs:  []interceptor.RTCPFeedback{{Type: FeedbackTypeNACK, Parameter: ParameterRPSI}},
			want: FeedbackCapabilities{RPSI: true},
		},
		{
			name: "fir parameter under wrong type",
			fbs:  []interceptor.RTCPFeedback{{Type: FeedbackTypeNACK, Parameter: ParameterFIR}},
			want: FeedbackCapabilities{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NegotiatedFeedback(tt.fbs)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != FeedbackCapabilities{}, got.Any())
		})
	}
}
