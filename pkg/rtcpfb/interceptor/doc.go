// Package interceptor provides a Pion WebRTC interceptor for picture-level
// RTCP feedback: Full Intra Request (RFC 5104), Picture Loss Indication and
// Reference Picture Selection Indication (RFC 4585).
//
// On the receive path every incoming compound RTCP packet is decoded and
// FIR, PLI and RPSI messages are handed to callbacks, so a sender can react
// with a key frame. On the send path the application queues feedback about
// remote streams, and the interceptor packs it into MTU-bounded compound
// packets written on a short interval.
//
// # Quick Start
//
// Register the interceptor factory with your Pion WebRTC API:
//
//	import (
//	    "github.com/pion/interceptor"
//	    "github.com/pion/webrtc/v4"
//	    fbint "github.com/thesyncim/rtcpfb/pkg/rtcpfb/interceptor"
//	)
//
//	func setupPeerConnection() (*webrtc.PeerConnection, *fbint.FeedbackInterceptor, error) {
//	    m := &webrtc.MediaEngine{}
//	    if err := m.RegisterDefaultCodecs(); err != nil {
//	        return nil, nil, err
//	    }
//
//	    var fb *fbint.FeedbackInterceptor
//	    factory, err := fbint.NewFeedbackInterceptorFactory(
//	        fbint.WithOnNewInterceptor(func(i *fbint.FeedbackInterceptor) { fb = i }),
//	        fbint.WithFactoryOnPLI(func(p *rtcpfb.Pli) { encoder.ForceKeyFrame() }),
//	    )
//	    if err != nil {
//	        return nil, nil, err
//	    }
//
//	    i := &interceptor.Registry{}
//	    i.Add(factory)
//
//	    api := webrtc.NewAPI(
//	        webrtc.WithMediaEngine(m),
//	        webrtc.WithInterceptorRegistry(i),
//	    )
//	    pc, err := api.NewPeerConnection(webrtc.Configuration{})
//	    return pc, fb, err
//	}
//
// # Configuration
//
//	factory, err := fbint.NewFeedbackInterceptorFactory(
//	    fbint.WithFactoryMTU(1200),                              // Datagram size limit
//	    fbint.WithFactoryFlushInterval(10*time.Millisecond),     // Write queued feedback every 10ms
//	    fbint.WithFactoryMinKeyFrameInterval(time.Second),       // At most one FIR per stream per second
//	)
//
// # How It Works
//
// 1. When a remote stream is bound (BindRemoteStream), the interceptor records
// which of ccm fir, nack pli and nack rpsi were negotiated for it.
//
// 2. RequestKeyFrame queues a FIR for streams that accept it and a PLI for
// streams that only accept PLI. FIR sequence numbers are tracked per stream
// and new requests are throttled.
//
// 3. When the RTCP writer is bound (BindRTCPWriter), a background goroutine
// flushes the queue at the configured interval.
//
// 4. Inactive streams (no packets for 2 seconds) are automatically cleaned up.
package interceptor
