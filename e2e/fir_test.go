//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/go-rod/rod"

	"github.com/thesyncim/rtcpfb/cmd/chrome-interop/server"
	"github.com/thesyncim/rtcpfb/pkg/rtcpfb/testutil"
)

// session is a running interop server with a browser on its page.
type session struct {
	srv    *server.Server
	client *testutil.BrowserClient
	page   *rod.Page
}

// openSession starts a server with cfg and loads its page in a fresh
// headless Chrome. Both are torn down when the test ends.
func openSession(t *testing.T, cfg server.Config) *session {
	t.Helper()

	srv, err := server.NewServer(cfg)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("server shutdown error: %v", err)
		}
	})

	client, err := testutil.NewBrowserClient(testutil.DefaultBrowserConfig())
	if err != nil {
		t.Fatalf("failed to create browser: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("browser close error: %v", err)
		}
	})

	// getUserMedia needs a secure context, so use localhost rather than the
	// [::]:port the listener reports.
	_, port, _ := net.SplitHostPort(addr)
	page, err := client.Navigate("http://localhost:" + port)
	if err != nil {
		t.Fatalf("failed to navigate: %v", err)
	}
	if err := client.WaitStable(); err != nil {
		t.Fatalf("page not stable: %v", err)
	}
	return &session{srv: srv, client: client, page: page}
}

func (s *session) evalBool(t *testing.T, js string) bool {
	t.Helper()
	result, err := s.page.Eval(js)
	if err != nil {
		t.Fatalf("eval %q: %v", js, err)
	}
	return result.Value.Bool()
}

// TestChrome_InteropPage checks the page before a call: WebRTC is available,
// window.pc is declared but unset, and the feedback counters are rendered
// from both the browser and the server side.
func TestChrome_InteropPage(t *testing.T) {
	s := openSession(t, server.DefaultConfig())

	if got := s.page.MustElement("title").MustText(); got != "RTCP Feedback Chrome Interop Test" {
		t.Errorf("title = %q", got)
	}
	if !s.evalBool(t, `() => typeof RTCPeerConnection !== 'undefined'`) {
		t.Fatal("RTCPeerConnection not available in browser")
	}
	if !s.evalBool(t, `() => 'pc' in window && window.pc === null`) {
		t.Error("window.pc is not exposed before the call")
	}

	if got := s.page.MustElement("#fir").MustText(); got != "FIR received: 0, key frames sent: 0" {
		t.Errorf("#fir = %q", got)
	}
	for _, id := range []string{"#firCount", "#pliCount", "#keyFrames", "#datagramsSent", "#packetsSent", "#sessions"} {
		if _, err := s.page.Element(id); err != nil {
			t.Errorf("missing counter %s: %v", id, err)
		}
	}

	if !s.evalBool(t, `async () => {
		const stats = await (await fetch('/stats')).json();
		return stats.sessions === 0 && stats.datagramsSent === 0;
	}`) {
		t.Error("/stats reports activity before any call")
	}
}

// TestChrome_RespondsToFIR starts a call from the page's own button and
// checks that Chrome counts the server's FIRs and encodes a key frame for
// them, while the server reports the feedback it wrote.
func TestChrome_RespondsToFIR(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.KeyFrameInterval = 500 * time.Millisecond
	s := openSession(t, cfg)

	s.page.MustElement("#startBtn").MustClick()

	if err := waitForConnection(t, s.page, 30*time.Second); err != nil {
		t.Fatalf("WebRTC connection failed: %v", err)
	}
	t.Log("WebRTC connection established")

	deadline := time.Now().Add(10 * time.Second)
	var stats testutil.KeyFrameStats
	for time.Now().Before(deadline) {
		var err error
		stats, err = s.client.OutboundKeyFrameStats()
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.FirCount >= 2 {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if stats.Unsupported {
		t.Skip("browser does not report outbound-rtp stats")
	}

	t.Logf("Chrome outbound-rtp: firCount=%d pliCount=%d keyFramesEncoded=%d framesSent=%d",
		stats.FirCount, stats.PliCount, stats.KeyFrames, stats.FramesSent)

	if stats.FirCount < 2 {
		t.Fatalf("firCount = %d, want at least 2", stats.FirCount)
	}
	if stats.KeyFrames < 2 {
		t.Errorf("keyFramesEncoded = %d, want at least 2 (initial frame plus one per FIR)", stats.KeyFrames)
	}

	fb := s.srv.FeedbackStats()
	t.Logf("server feedback: %+v", fb)
	if fb.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", fb.Sessions)
	}
	if fb.PacketsSent < uint64(stats.FirCount) {
		t.Errorf("server sent %d feedback packets, Chrome counted %d FIRs", fb.PacketsSent, stats.FirCount)
	}
	if fb.PacketsDropped != 0 {
		t.Errorf("server dropped %d of Chrome's RTCP packets", fb.PacketsDropped)
	}
}

// waitForConnection polls window.pc.connectionState until "connected" or timeout.
func waitForConnection(t *testing.T, page *rod.Page, timeout time.Duration) error {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		result, err := page.Eval(`() => window.pc ? window.pc.connectionState : 'no-pc'`)
		if err != nil {
			return fmt.Errorf("failed to check connection state: %w", err)
		}

		switch state := result.Value.String(); state {
		case "connected":
			return nil
		case "failed", "closed":
			return errors.New("connection " + state)
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for connection (waited %v)", timeout)
}
