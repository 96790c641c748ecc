package interceptor

import (
	"sync/atomic"
	"time"
)

// streamState tracks a remote media stream the interceptor may send
// feedback about.
//
// The lastPacketTime uses atomic.Value for thread-safe access because:
// - BindRemoteStream reader updates it on every incoming packet
// - cleanupLoop reads it periodically to detect inactive streams
type streamState struct {
	ssrc           uint32
	feedback       FeedbackCapabilities
	lastPacketTime atomic.Value // stores time.Time
	packets        atomic.Uint64
}

// newStreamState creates a new stream state for the given SSRC.
// The lastPacketTime is initialized to now.
func newStreamState(ssrc uint32, feedback FeedbackCapabilities, now time.Time) *streamState {
	s := &streamState{
		ssrc:     ssrc,
		feedback: feedback,
	}
	s.lastPacketTime.Store(now)
	return s
}

// UpdateLastPacket records an RTP packet arriving at t.
func (s *streamState) UpdateLastPacket(t time.Time) {
	s.lastPacketTime.Store(t)
	s.packets.Add(1)
}

// LastPacket returns the arrival time of the most recent packet for this stream.
func (s *streamState) LastPacket() time.Time {
	return s.lastPacketTime.Load().(time.Time)
}

// Packets returns the number of RTP packets seen on the stream.
func (s *streamState) Packets() uint64 {
	return s.packets.Load()
}

// SSRC returns the stream's SSRC identifier.
func (s *streamState) SSRC() uint32 {
	return s.ssrc
}
