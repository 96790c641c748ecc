package interceptor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcpfb/pkg/rtcpfb"
	"github.com/thesyncim/rtcpfb/pkg/rtcpfb/internal"
)

const (
	// streamTimeout is how long to keep tracking an inactive stream.
	// Streams with no packets for this duration are removed.
	streamTimeout = 2 * time.Second

	// minMTU is the smallest buffer that holds a FIR with a few requests.
	minMTU = 64

	// maxMTU is the largest RTCP datagram the interceptor builds.
	maxMTU = 65535
)

// ErrWriterNotBound is returned by Flush before Pion bound the RTCP writer.
var ErrWriterNotBound = errors.New("rtcp writer not bound")

// ErrNotNegotiated is returned when feedback is sent about a tracked stream
// that did not negotiate it.
var ErrNotNegotiated = errors.New("feedback not negotiated")

// Stats are cumulative counters of a FeedbackInterceptor.
type Stats struct {
	// PacketsReceived counts decoded incoming RTCP packets of any type.
	PacketsReceived uint64
	// PacketsDropped counts incoming packets that failed validation.
	PacketsDropped uint64
	// FIRReceived, PLIReceived and RPSIReceived count decoded feedback.
	FIRReceived  uint64
	PLIReceived  uint64
	RPSIReceived uint64
	// PacketsSent counts feedback packets in datagrams the RTCP writer accepted.
	PacketsSent uint64
	// DatagramsSent counts compound packets handed to the RTCP writer.
	DatagramsSent uint64
}

type stats struct {
	packetsReceived atomic.Uint64
	packetsDropped  atomic.Uint64
	firReceived     atomic.Uint64
	pliReceived     atomic.Uint64
	rpsiReceived    atomic.Uint64
	packetsSent     atomic.Uint64
	datagramsSent   atomic.Uint64
}

// FeedbackInterceptor is a Pion interceptor for picture feedback.
//
// Incoming RTCP is decoded with rtcpfb and FIR, PLI and RPSI packets are
// delivered to the configured callbacks. Outgoing feedback queued with
// RequestKeyFrame, SendPLI and SendRPSI is packed into MTU-bounded compound
// packets and written on every flush interval.
//
// Usage:
//
//	fb := NewFeedbackInterceptor(WithSenderSSRC(ssrc), WithOnPLI(onPLI))
//	// Add to interceptor registry...
//	fb.RequestKeyFrame(remoteSSRC)
type FeedbackInterceptor struct {
	interceptor.NoOp // Embed for interface compliance

	id      string
	log     logrus.FieldLogger
	clock   internal.Clock
	streams sync.Map // SSRC (uint32) -> *streamState

	// Outgoing feedback
	mu            sync.Mutex
	rtcpWriter    interceptor.RTCPWriter
	queue         []rtcpfb.Packet
	requester     *rtcpfb.KeyFrameRequester
	buffers       *bufferPool
	mtu           int
	flushInterval time.Duration
	senderSSRC    uint32
	minKeyFrame   time.Duration

	// Callbacks for incoming feedback
	onFIR  func(*rtcpfb.Fir)
	onPLI  func(*rtcpfb.Pli)
	onRPSI func(*rtcpfb.Rpsi)

	stats stats

	// Lifecycle
	closed     chan struct{}
	wg         sync.WaitGroup
	flushOnce  sync.Once // Ensures flush loop starts only once
	streamOnce sync.Once // Ensures cleanup loop starts only once
	closeOnce  sync.Once
}

// InterceptorOption is a functional option for configuring FeedbackInterceptor.
type InterceptorOption func(*FeedbackInterceptor)

// WithMTU sets the maximum size of an outgoing compound packet.
// Default is rtcpfb.DefaultMTU.
func WithMTU(mtu int) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.mtu = mtu
	}
}

// WithFlushInterval sets how often queued feedback is written.
// Default is 20ms.
func WithFlushInterval(d time.Duration) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.flushInterval = d
	}
}

// WithSenderSSRC sets the sender SSRC used in outgoing feedback.
func WithSenderSSRC(ssrc uint32) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.senderSSRC = ssrc
	}
}

// WithMinKeyFrameInterval sets the minimum time between two key-frame
// requests to the same stream. Default is 300ms.
func WithMinKeyFrameInterval(d time.Duration) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.minKeyFrame = d
	}
}

// WithOnFIR sets a callback invoked for every incoming FIR.
func WithOnFIR(fn func(*rtcpfb.Fir)) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.onFIR = fn
	}
}

// WithOnPLI sets a callback invoked for every incoming PLI.
func WithOnPLI(fn func(*rtcpfb.Pli)) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.onPLI = fn
	}
}

// WithOnRPSI sets a callback invoked for every incoming RPSI.
func WithOnRPSI(fn func(*rtcpfb.Rpsi)) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.onRPSI = fn
	}
}

// WithLogger sets the logger. Default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.log = l
	}
}

// WithID sets the identifier attached to log entries.
func WithID(id string) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.id = id
	}
}

// withClock replaces the clock, for tests.
func withClock(c internal.Clock) InterceptorOption {
	return func(i *FeedbackInterceptor) {
		i.clock = c
	}
}

// NewFeedbackInterceptor creates a new feedback interceptor.
//
// Options can be provided to customize behavior:
//   - WithMTU: Set the compound packet size limit (default 1500)
//   - WithFlushInterval: Set how often feedback is written (default 20ms)
//   - WithSenderSSRC: Set sender SSRC for feedback packets
func NewFeedbackInterceptor(opts ...InterceptorOption) *FeedbackInterceptor {
	i := &FeedbackInterceptor{
		log:           logrus.StandardLogger(),
		clock:         internal.SystemClock{},
		closed:        make(chan struct{}),
		mtu:           rtcpfb.DefaultMTU,
		flushInterval: 20 * time.Millisecond,
		minKeyFrame:   rtcpfb.DefaultKeyFrameRequesterConfig().MinInterval,
	}
	for _, opt := range opts {
		opt(i)
	}

	i.log = i.log.WithField("interceptor", i.id)
	i.buffers = newBufferPool(i.mtu)

	config := rtcpfb.DefaultKeyFrameRequesterConfig()
	config.MinInterval = i.minKeyFrame
	config.SenderSSRC = i.senderSSRC
	i.requester = rtcpfb.NewKeyFrameRequester(config)

	return i
}

// ID returns the identifier the interceptor logs with.
func (i *FeedbackInterceptor) ID() string {
	return i.id
}

// Close shuts down the interceptor and releases resources.
// Feedback still queued is discarded.
func (i *FeedbackInterceptor) Close() error {
	i.closeOnce.Do(func() {
		close(i.closed)
	})
	i.wg.Wait()
	return nil
}

// BindRTCPReader is called by Pion for incoming RTCP. Every compound packet
// is decoded and feedback is delivered to the callbacks before the packet is
// passed on unchanged.
func (i *FeedbackInterceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTCP(b[:n])
		}
		return n, a, err
	})
}

// processRTCP decodes a compound packet and dispatches feedback.
func (i *FeedbackInterceptor) processRTCP(data []byte) {
	err := rtcpfb.Walk(data, func(h rtcpfb.CommonHeader, payload []byte) error {
		p, err := rtcpfb.ParsePacket(h, payload)
		if err != nil {
			i.stats.packetsDropped.Add(1)
			i.log.WithFields(logrus.Fields{
				"function": "processRTCP",
				"type":     h.PacketType,
				"format":   h.CountOrFormat,
				"error":    err.Error(),
			}).Warn("Dropping malformed RTCP packet")
			return nil
		}
		i.stats.packetsReceived.Add(1)
		i.dispatch(p)
		return nil
	})
	if err != nil {
		i.stats.packetsDropped.Add(1)
		i.log.WithFields(logrus.Fields{
			"function": "processRTCP",
			"length":   len(data),
			"error":    err.Error(),
		}).Warn("Dropping rest of compound RTCP packet")
	}
}

func (i *FeedbackInterceptor) dispatch(p rtcpfb.Packet) {
	switch p := p.(type) {
	case *rtcpfb.Fir:
		i.stats.firReceived.Add(1)
		if i.onFIR != nil {
			i.onFIR(p)
		}
	case *rtcpfb.Pli:
		i.stats.pliReceived.Add(1)
		if i.onPLI != nil {
			i.onPLI(p)
		}
	case *rtcpfb.Rpsi:
		i.stats.rpsiReceived.Add(1)
		if i.onRPSI != nil {
			i.onRPSI(p)
		}
	}
}

// BindRTCPWriter is called by Pion when the RTCP writer is ready.
// It captures the writer for sending feedback and starts the flush loop.
func (i *FeedbackInterceptor) BindRTCPWriter(writer interceptor.RTCPWriter) interceptor.RTCPWriter {
	i.mu.Lock()
	i.rtcpWriter = writer
	i.mu.Unlock()

	i.flushOnce.Do(func() {
		i.wg.Add(1)
		go i.flushLoop()
	})

	return writer // Pass through unchanged
}

// BindRemoteStream is called by Pion when a new remote stream is detected.
// It records the stream's negotiated feedback and wraps the reader to track
// activity.
func (i *FeedbackInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	// Start cleanup loop on first stream (only once)
	i.streamOnce.Do(func() {
		i.wg.Add(1)
		go i.cleanupLoop()
	})

	state := newStreamState(info.SSRC, NegotiatedFeedback(info.RTCPFeedback), i.clock.Now())
	i.streams.Store(info.SSRC, state)

	i.log.WithFields(logrus.Fields{
		"function": "BindRemoteStream",
		"ssrc":     info.SSRC,
		"mime":     info.MimeType,
		"fir":      state.feedback.FIR,
		"pli":      state.feedback.PLI,
		"rpsi":     state.feedback.RPSI,
	}).Debug("Tracking remote stream")

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTP(b[:n], state)
		}
		return n, a, err
	})
}

// UnbindRemoteStream is called by Pion when a remote stream is removed.
func (i *FeedbackInterceptor) UnbindRemoteStream(info *interceptor.StreamInfo) {
	i.streams.Delete(info.SSRC)

	i.mu.Lock()
	i.requester.Forget(info.SSRC)
	i.mu.Unlock()
}

// processRTP validates an RTP header and records stream activity.
func (i *FeedbackInterceptor) processRTP(raw []byte, state *streamState) {
	var header rtp.Header
	if _, err := header.Unmarshal(raw); err != nil {
		return // Invalid RTP, skip
	}
	if header.SSRC != state.ssrc {
		return
	}
	state.UpdateLastPacket(i.clock.Now())
}

// stream returns the tracked state of ssrc, if any.
func (i *FeedbackInterceptor) stream(ssrc uint32) (*streamState, bool) {
	v, ok := i.streams.Load(ssrc)
	if !ok {
		return nil, false
	}
	return v.(*streamState), true
}

// RequestKeyFrame queues a key-frame request for each ssrc. Streams that
// negotiated PLI but not FIR get a PLI. Requests to a stream are throttled
// to one per minimum key-frame interval; it reports whether anything was
// queued.
func (i *FeedbackInterceptor) RequestKeyFrame(ssrcs ...uint32) bool {
	var firSSRCs []uint32
	var plis []rtcpfb.Packet
	for _, ssrc := range ssrcs {
		if s, ok := i.stream(ssrc); ok && !s.feedback.FIR && s.feedback.PLI {
			plis = append(plis, &rtcpfb.Pli{SenderSSRC: i.senderSSRC, MediaSSRC: ssrc})
			continue
		}
		firSSRCs = append(firSSRCs, ssrc)
	}

	now := i.clock.Now()
	i.mu.Lock()
	defer i.mu.Unlock()

	queued := false
	if len(firSSRCs) > 0 {
		if fir, ok := i.requester.MaybeRequest(firSSRCs, now); ok {
			i.queue = append(i.queue, fir)
			queued = true
		}
	}
	for _, p := range plis {
		ssrc := p.(*rtcpfb.Pli).MediaSSRC
		if !i.requester.ShouldRequest(ssrc, now) {
			continue
		}
		i.requester.Record(ssrc, now)
		i.queue = append(i.queue, p)
		queued = true
	}
	return queued
}

// SendPLI queues a Picture Loss Indication for mediaSSRC.
func (i *FeedbackInterceptor) SendPLI(mediaSSRC uint32) {
	i.enqueue(&rtcpfb.Pli{SenderSSRC: i.senderSSRC, MediaSSRC: mediaSSRC})
}

// SendRPSI queues a Reference Picture Selection Indication telling the
// sender of mediaSSRC that pictureID was decoded correctly. A tracked stream
// must have negotiated "nack rpsi"; untracked streams are not checked.
func (i *FeedbackInterceptor) SendRPSI(mediaSSRC uint32, payloadType uint8, pictureID uint64) error {
	if payloadType > 0x7f {
		return errors.Errorf("payload type %d out of range", payloadType)
	}
	if s, ok := i.stream(mediaSSRC); ok && !s.feedback.RPSI {
		return errors.Wrapf(ErrNotNegotiated, "rpsi for ssrc %#x", mediaSSRC)
	}
	i.enqueue(&rtcpfb.Rpsi{
		SenderSSRC:  i.senderSSRC,
		MediaSSRC:   mediaSSRC,
		PayloadType: payloadType,
		PictureID:   pictureID,
	})
	return nil
}

func (i *FeedbackInterceptor) enqueue(p rtcpfb.Packet) {
	i.mu.Lock()
	i.queue = append(i.queue, p)
	i.mu.Unlock()
}

// Pending returns the number of queued feedback packets.
func (i *FeedbackInterceptor) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queue)
}

// Flush writes all queued feedback now, packed into as few compound packets
// as the MTU allows. Packets larger than the MTU are logged and discarded.
// When the RTCP writer fails, every packet not yet written goes back to the
// front of the queue for the next Flush.
func (i *FeedbackInterceptor) Flush() error {
	i.mu.Lock()
	writer := i.rtcpWriter
	if writer == nil {
		i.mu.Unlock()
		return ErrWriterNotBound
	}
	queue := i.queue
	i.queue = nil
	i.mu.Unlock()

	if len(queue) == 0 {
		return nil
	}

	buf := i.buffers.get()
	defer i.buffers.put(buf)

	// buffered holds the packets whose bytes sit in the Writer's buffer.
	var buffered []rtcpfb.Packet
	sink := rtcpfb.SinkFunc(func(packet []byte) ([]byte, error) {
		// RTCPWriter may hold on to the packet; hand it a copy.
		raw := rtcp.RawPacket(append([]byte(nil), packet...))
		if _, err := writer.Write([]rtcp.Packet{&raw}, nil); err != nil {
			return nil, err
		}
		i.stats.datagramsSent.Add(1)
		i.stats.packetsSent.Add(uint64(len(buffered)))
		buffered = buffered[:0]
		return packet[:cap(packet)], nil
	})

	w := rtcpfb.NewWriter(*buf, sink)
	for n, p := range queue {
		if err := w.Append(p); err != nil {
			if errors.Is(err, rtcpfb.ErrBlockTooLarge) {
				i.log.WithFields(logrus.Fields{
					"function": "Flush",
					"size":     p.BlockLength(),
					"mtu":      w.Cap(),
				}).Warn("Discarding feedback packet larger than MTU")
				continue
			}
			i.requeue(append(buffered, queue[n:]...))
			return errors.Wrap(err, "write feedback")
		}
		buffered = append(buffered, p)
	}
	if err := w.Flush(); err != nil {
		i.requeue(buffered)
		return errors.Wrap(err, "write feedback")
	}
	return nil
}

// requeue puts unwritten packets back ahead of anything queued since.
func (i *FeedbackInterceptor) requeue(unsent []rtcpfb.Packet) {
	i.mu.Lock()
	i.queue = append(append([]rtcpfb.Packet(nil), unsent...), i.queue...)
	i.mu.Unlock()
}

// flushLoop writes queued feedback every flush interval.
func (i *FeedbackInterceptor) flushLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(i.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case <-ticker.C:
			if err := i.Flush(); err != nil && !errors.Is(err, ErrWriterNotBound) {
				i.log.WithFields(logrus.Fields{
					"function": "flushLoop",
					"error":    err.Error(),
				}).Warn("Failed to write RTCP feedback")
			}
		}
	}
}

// cleanupLoop runs periodically to remove inactive streams.
func (i *FeedbackInterceptor) cleanupLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(time.Second) // Check every second
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case <-ticker.C:
			i.cleanupInactiveStreams(i.clock.Now())
		}
	}
}

// cleanupInactiveStreams removes streams that haven't received packets
// for longer than streamTimeout.
func (i *FeedbackInterceptor) cleanupInactiveStreams(now time.Time) {
	i.streams.Range(func(key, value any) bool {
		state := value.(*streamState)
		if now.Sub(state.LastPacket()) > streamTimeout {
			i.streams.Delete(key)
			i.mu.Lock()
			i.requester.Forget(state.ssrc)
			i.mu.Unlock()
		}
		return true // Continue iteration
	})
}

// Stats returns a snapshot of the interceptor's counters.
func (i *FeedbackInterceptor) Stats() Stats {
	return Stats{
		PacketsReceived: i.stats.packetsReceived.Load(),
		PacketsDropped:  i.stats.packetsDropped.Load(),
		FIRReceived:     i.stats.firReceived.Load(),
		PLIReceived:     i.stats.pliReceived.Load(),
		RPSIReceived:    i.stats.rpsiReceived.Load(),
		PacketsSent:     i.stats.packetsSent.Load(),
		DatagramsSent:   i.stats.datagramsSent.Load(),
	}
}
