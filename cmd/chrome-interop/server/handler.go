package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcpfb/pkg/rtcpfb"
	fbinterceptor "github.com/thesyncim/rtcpfb/pkg/rtcpfb/interceptor"
)

// offerHandler answers WebRTC offers from the browser. Every peer connection
// gets its own feedback interceptor, which asks the browser for a key frame
// on each received video track every keyFrameInterval.
type offerHandler struct {
	keyFrameInterval time.Duration
	log              logrus.FieldLogger

	mu       sync.Mutex
	sessions map[*webrtc.PeerConnection]*fbinterceptor.FeedbackInterceptor
}

func newOfferHandler(keyFrameInterval time.Duration, log logrus.FieldLogger) *offerHandler {
	return &offerHandler{
		keyFrameInterval: keyFrameInterval,
		log:              log,
		sessions:         make(map[*webrtc.PeerConnection]*fbinterceptor.FeedbackInterceptor),
	}
}

func (h *offerHandler) register(pc *webrtc.PeerConnection, fb *fbinterceptor.FeedbackInterceptor) {
	h.mu.Lock()
	h.sessions[pc] = fb
	h.mu.Unlock()
}

// release forgets pc and closes it.
func (h *offerHandler) release(pc *webrtc.PeerConnection) error {
	h.mu.Lock()
	delete(h.sessions, pc)
	h.mu.Unlock()
	return pc.Close()
}

// closeAll closes every open session and reports how many there were.
func (h *offerHandler) closeAll() (int, error) {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[*webrtc.PeerConnection]*fbinterceptor.FeedbackInterceptor)
	h.mu.Unlock()

	var firstErr error
	for pc := range sessions {
		if err := pc.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close peer connection")
		}
	}
	return len(sessions), firstErr
}

func (h *offerHandler) stats() FeedbackStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := FeedbackStats{Sessions: len(h.sessions)}
	for _, fb := range h.sessions {
		st := fb.Stats()
		out.PacketsSent += st.PacketsSent
		out.DatagramsSent += st.DatagramsSent
		out.FIRReceived += st.FIRReceived
		out.PLIReceived += st.PLIReceived
		out.PacketsDropped += st.PacketsDropped
	}
	return out
}

// ServeHTTP handles WebRTC offer requests from the browser.
// It creates a peer connection with the feedback interceptor and returns an answer.
func (h *offerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse incoming offer
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		h.log.WithError(err).Warn("Failed to decode offer")
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	peerConnection, fb, err := h.newPeerConnection()
	if err != nil {
		h.log.WithError(err).Error("Failed to create peer connection")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	h.register(peerConnection, fb)
	answered := false
	defer func() {
		if !answered {
			_ = h.release(peerConnection)
		}
	}()

	// Add transceiver to receive video
	_, err = peerConnection.AddTransceiverFromKind(
		webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	)
	if err != nil {
		h.log.WithError(err).Error("Failed to add transceiver")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	peerConnection.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		ssrc := uint32(track.SSRC())
		h.log.WithFields(logrus.Fields{
			"codec": track.Codec().MimeType,
			"ssrc":  ssrc,
		}).Info("Received video track")

		for _, fbType := range track.Codec().RTCPFeedback {
			h.log.WithFields(logrus.Fields{
				"type":      fbType.Type,
				"parameter": fbType.Parameter,
			}).Debug("Negotiated RTCP feedback")
		}

		done := make(chan struct{})
		go h.requestKeyFrames(fb, ssrc, done)

		// Read packets to keep the stream alive
		go func() {
			defer close(done)
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					h.log.WithError(err).Info("Track read ended")
					return
				}
			}
		}()
	})

	// Log connection state changes
	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		h.log.WithField("state", state.String()).Info("Connection state")
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			_ = h.release(peerConnection)
		}
	})

	// Set remote description (the offer from browser)
	if err := peerConnection.SetRemoteDescription(offer); err != nil {
		h.log.WithError(err).Warn("Failed to set remote description")
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		h.log.WithError(err).Error("Failed to create answer")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := peerConnection.SetLocalDescription(answer); err != nil {
		h.log.WithError(err).Error("Failed to set local description")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	<-gatherComplete

	// Send answer with complete ICE candidates
	answered = true
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(peerConnection.LocalDescription()); err != nil {
		h.log.WithError(err).Warn("Failed to write answer")
	}

	h.log.Info("WebRTC connection established, requesting key frames...")
}

// newPeerConnection builds an API whose interceptor registry carries the
// feedback interceptor and returns the peer connection together with the
// interceptor created for it.
func (h *offerHandler) newPeerConnection() (*webrtc.PeerConnection, *fbinterceptor.FeedbackInterceptor, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, nil, errors.Wrap(err, "register codecs")
	}

	// Feedback must be registered before the PeerConnection is created so it
	// is offered in the answer; Chrome only honors FIR when ccm fir was
	// negotiated.
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: fbinterceptor.FeedbackTypeCCM, Parameter: fbinterceptor.ParameterFIR}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: fbinterceptor.FeedbackTypeNACK}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: fbinterceptor.FeedbackTypeNACK, Parameter: fbinterceptor.ParameterPLI}, webrtc.RTPCodecTypeVideo)

	i := &interceptor.Registry{}

	var fb *fbinterceptor.FeedbackInterceptor
	factory, err := fbinterceptor.NewFeedbackInterceptorFactory(
		fbinterceptor.WithFactoryLogger(h.log),
		fbinterceptor.WithFactoryMinKeyFrameInterval(h.keyFrameInterval/2),
		fbinterceptor.WithOnNewInterceptor(func(created *fbinterceptor.FeedbackInterceptor) {
			fb = created
		}),
		fbinterceptor.WithFactoryOnFIR(func(fir *rtcpfb.Fir) {
			h.log.WithField("packet", fir.String()).Info("FIR received")
		}),
		fbinterceptor.WithFactoryOnPLI(func(pli *rtcpfb.Pli) {
			h.log.WithField("packet", pli.String()).Info("PLI received")
		}),
		fbinterceptor.WithFactoryOnRPSI(func(rpsi *rtcpfb.Rpsi) {
			h.log.WithField("packet", rpsi.String()).Info("RPSI received")
		}),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create feedback factory")
	}
	i.Add(factory)

	// Configure RTCP reports (Sender/Receiver reports) - required for WebRTC
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, nil, errors.Wrap(err, "configure RTCP reports")
	}

	// Configure stats interceptor for RTP stream statistics
	if err := webrtc.ConfigureStatsInterceptor(i); err != nil {
		return nil, nil, errors.Wrap(err, "configure stats interceptor")
	}

	// Add NACK generator (receiver-side, requests retransmissions on packet loss)
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, nil, errors.Wrap(err, "create NACK generator")
	}
	i.Add(generator)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	)

	// Create peer connection
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{}, // Local testing
	}
	peerConnection, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, nil, errors.Wrap(err, "new peer connection")
	}
	if fb == nil {
		peerConnection.Close()
		return nil, nil, errors.New("feedback interceptor was not created")
	}
	return peerConnection, fb, nil
}

// requestKeyFrames asks the sender of ssrc for a key frame every
// keyFrameInterval until done is closed.
func (h *offerHandler) requestKeyFrames(fb *fbinterceptor.FeedbackInterceptor, ssrc uint32, done <-chan struct{}) {
	ticker := time.NewTicker(h.keyFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if fb.RequestKeyFrame(ssrc) {
				h.log.WithFields(logrus.Fields{
					"ssrc":  ssrc,
					"stats": fb.Stats(),
				}).Info("Key frame requested")
			}
		}
	}
}
