package rtcpfb

import (
	"time"

	"github.com/golang/groupcache/lru"
)

// KeyFrameRequesterConfig configures FIR scheduling.
type KeyFrameRequesterConfig struct {
	// MinInterval is the minimum time between two new requests to the same
	// media source (default: 300ms).
	MinInterval time.Duration

	// SenderSSRC is the SSRC to use in FIR packets (receiver's SSRC).
	SenderSSRC uint32

	// MaxSources bounds the number of media sources whose sequence numbers
	// are remembered (default: 64). The least recently requested source is
	// forgotten first.
	MaxSources int
}

// DefaultKeyFrameRequesterConfig returns default requester configuration.
func DefaultKeyFrameRequesterConfig() KeyFrameRequesterConfig {
	return KeyFrameRequesterConfig{
		MinInterval: 300 * time.Millisecond,
		SenderSSRC:  0, // Will be set by transport
		MaxSources:  64,
	}
}

type keyFrameSource struct {
	seqNr    uint8 // sequence number of the last request
	lastSent time.Time
	// requested is false while only Record has touched the source.
	requested bool
}

// KeyFrameRequester builds FIR packets with correct sequence numbers.
//
// RFC 5104 Section 4.3.1.2: the sequence number is incremented by one for
// each new request to a media source and kept when a request is repeated.
// New requests to a source are throttled to one per MinInterval.
//
// KeyFrameRequester is not safe for concurrent use.
type KeyFrameRequester struct {
	config  KeyFrameRequesterConfig
	sources *lru.Cache
}

// NewKeyFrameRequester creates a new requester. Zero config fields take
// their default values.
func NewKeyFrameRequester(config KeyFrameRequesterConfig) *KeyFrameRequester {
	defaults := DefaultKeyFrameRequesterConfig()
	if config.MinInterval <= 0 {
		config.MinInterval = defaults.MinInterval
	}
	if config.MaxSources <= 0 {
		config.MaxSources = defaults.MaxSources
	}
	return &KeyFrameRequester{
		config:  config,
		sources: lru.New(config.MaxSources),
	}
}

func (r *KeyFrameRequester) source(ssrc uint32) (*keyFrameSource, bool) {
	v, ok := r.sources.Get(ssrc)
	if !ok {
		return nil, false
	}
	return v.(*keyFrameSource), true
}

// ShouldRequest reports whether a new request to ssrc may be sent at now:
// either no request was ever sent or MinInterval has elapsed since the last.
func (r *KeyFrameRequester) ShouldRequest(ssrc uint32, now time.Time) bool {
	src, ok := r.source(ssrc)
	if !ok {
		return true
	}
	return now.Sub(src.lastSent) >= r.config.MinInterval
}

// BuildAndRecord creates a FIR with a new request for every ssrc and records
// the send. Returns nil if ssrcs is empty.
func (r *KeyFrameRequester) BuildAndRecord(ssrcs []uint32, now time.Time) *Fir {
	if len(ssrcs) == 0 {
		return nil
	}
	fir := NewFir(r.config.SenderSSRC)
	for _, ssrc := range ssrcs {
		src, ok := r.source(ssrc)
		switch {
		case !ok:
			src = &keyFrameSource{}
			r.sources.Add(ssrc, src)
		case src.requested:
			src.seqNr++
		}
		src.requested = true
		src.lastSent = now
		fir.AddRequest(ssrc, src.seqNr)
	}
	return fir
}

// BuildRepeat creates a FIR repeating the last request to every ssrc that
// has one, keeping its sequence number. Returns nil if none has.
func (r *KeyFrameRequester) BuildRepeat(ssrcs []uint32) *Fir {
	var fir *Fir
	for _, ssrc := range ssrcs {
		src, ok := r.source(ssrc)
		if !ok || !src.requested {
			continue
		}
		if fir == nil {
			fir = NewFir(r.config.SenderSSRC)
		}
		fir.AddRequest(ssrc, src.seqNr)
	}
	return fir
}

// MaybeRequest combines ShouldRequest and BuildAndRecord for the sources
// that are not throttled.
// Returns (fir, true) if any request should be sent, (nil, false) otherwise.
//
// This is the primary API for the requester.
func (r *KeyFrameRequester) MaybeRequest(ssrcs []uint32, now time.Time) (*Fir, bool) {
	due := make([]uint32, 0, len(ssrcs))
	for _, ssrc := range ssrcs {
		if r.ShouldRequest(ssrc, now) {
			due = append(due, ssrc)
		}
	}
	if len(due) == 0 {
		return nil, false
	}
	return r.BuildAndRecord(due, now), true
}

// LastSeqNr returns the sequence number of the last request sent to ssrc.
func (r *KeyFrameRequester) LastSeqNr(ssrc uint32) (uint8, bool) {
	src, ok := r.source(ssrc)
	if !ok || !src.requested {
		return 0, false
	}
	return src.seqNr, true
}

// Record marks a key frame request to ssrc sent by other means, such as a
// PLI, so it counts against MinInterval. The FIR sequence number is left
// alone.
func (r *KeyFrameRequester) Record(ssrc uint32, now time.Time) {
	src, ok := r.source(ssrc)
	if !ok {
		src = &keyFrameSource{}
		r.sources.Add(ssrc, src)
	}
	src.lastSent = now
}

// Forget drops the state kept for ssrc.
func (r *KeyFrameRequester) Forget(ssrc uint32) {
	r.sources.Remove(ssrc)
}

// Reset clears all per-source state.
func (r *KeyFrameRequester) Reset() {
	r.sources.Clear()
}
