package interceptor

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcpfb/pkg/rtcpfb"
)

// FactoryOption configures the FeedbackInterceptorFactory.
type FactoryOption func(*FeedbackInterceptorFactory) error

// FeedbackInterceptorFactory creates FeedbackInterceptor instances for each
// PeerConnection. Register this factory with the interceptor registry to
// enable FIR/PLI/RPSI feedback.
type FeedbackInterceptorFactory struct {
	mtu              int
	flushInterval    time.Duration
	senderSSRC       uint32
	minKeyFrame      time.Duration
	logger           logrus.FieldLogger
	onFIR            func(*rtcpfb.Fir)
	onPLI            func(*rtcpfb.Pli)
	onRPSI           func(*rtcpfb.Rpsi)
	onNewInterceptor func(*FeedbackInterceptor)
}

// WithFactoryMTU sets the maximum outgoing compound packet size.
// Default: 1500
func WithFactoryMTU(mtu int) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		if mtu < minMTU || mtu > maxMTU {
			return errors.Errorf("MTU must be between %d and %d", minMTU, maxMTU)
		}
		f.mtu = mtu
		return nil
	}
}

// WithFactoryFlushInterval sets how often queued feedback is written.
// Default: 20ms
func WithFactoryFlushInterval(interval time.Duration) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		if interval <= 0 {
			return errors.New("flush interval must be positive")
		}
		f.flushInterval = interval
		return nil
	}
}

// WithFactorySenderSSRC sets the sender SSRC for feedback packets.
// Default: 0 (many implementations use 0)
func WithFactorySenderSSRC(ssrc uint32) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		f.senderSSRC = ssrc
		return nil
	}
}

// WithFactoryMinKeyFrameInterval sets the per-stream key-frame request throttle.
// Default: 300ms
func WithFactoryMinKeyFrameInterval(interval time.Duration) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		if interval <= 0 {
			return errors.New("key frame interval must be positive")
		}
		f.minKeyFrame = interval
		return nil
	}
}

// WithFactoryLogger sets the logger handed to every interceptor.
func WithFactoryLogger(l logrus.FieldLogger) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		f.logger = l
		return nil
	}
}

// WithFactoryOnFIR sets a callback invoked for every incoming FIR.
func WithFactoryOnFIR(fn func(*rtcpfb.Fir)) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		f.onFIR = fn
		return nil
	}
}

// WithFactoryOnPLI sets a callback invoked for every incoming PLI.
func WithFactoryOnPLI(fn func(*rtcpfb.Pli)) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		f.onPLI = fn
		return nil
	}
}

// WithFactoryOnRPSI sets a callback invoked for every incoming RPSI.
func WithFactoryOnRPSI(fn func(*rtcpfb.Rpsi)) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		f.onRPSI = fn
		return nil
	}
}

// WithOnNewInterceptor sets a callback receiving every interceptor the
// factory creates, so the application can request key frames through it.
func WithOnNewInterceptor(fn func(*FeedbackInterceptor)) FactoryOption {
	return func(f *FeedbackInterceptorFactory) error {
		f.onNewInterceptor = fn
		return nil
	}
}

// NewFeedbackInterceptorFactory creates a new factory for FeedbackInterceptor
// instances. Configure the factory using FactoryOption functions.
//
// Example:
//
//	factory, err := NewFeedbackInterceptorFactory(
//	    WithFactoryMTU(1200),
//	    WithOnNewInterceptor(func(fb *FeedbackInterceptor) { ... }),
//	)
//	if err != nil {
//	    return err
//	}
//	registry.Add(factory)
func NewFeedbackInterceptorFactory(opts ...FactoryOption) (*FeedbackInterceptorFactory, error) {
	f := &FeedbackInterceptorFactory{
		mtu:           rtcpfb.DefaultMTU,
		flushInterval: 20 * time.Millisecond,
		minKeyFrame:   rtcpfb.DefaultKeyFrameRequesterConfig().MinInterval,
		logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewInterceptor creates a new FeedbackInterceptor for a PeerConnection.
// This method is called by the interceptor registry when setting up a
// connection. An empty id is replaced by a random UUID.
func (f *FeedbackInterceptorFactory) NewInterceptor(id string) (interceptor.Interceptor, error) {
	if id == "" {
		id = uuid.NewString()
	}

	i := NewFeedbackInterceptor(
		WithID(id),
		WithLogger(f.logger),
		WithMTU(f.mtu),
		WithFlushInterval(f.flushInterval),
		WithSenderSSRC(f.senderSSRC),
		WithMinKeyFrameInterval(f.minKeyFrame),
		WithOnFIR(f.onFIR),
		WithOnPLI(f.onPLI),
		WithOnRPSI(f.onRPSI),
	)

	if f.onNewInterceptor != nil {
		f.onNewInterceptor(i)
	}
	return i, nil
}
