// Chrome Interop Test Server
//
// This server creates a Pion WebRTC endpoint that receives video from Chrome
// and asks for a key frame with FIR about once per second. Use this to
// verify that Chrome accepts the FIR packets: firCount and keyFramesEncoded
// in its outbound-rtp stats increase with every request.
package main

import (
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcpfb/cmd/chrome-interop/server"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	interval := flag.Duration("fir-interval", time.Second, "How often to request a key frame")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	// Print welcome message
	fmt.Printf(`
Chrome Interop Test Server
==========================
1. Open chrome://webrtc-internals in Chrome
2. Open http://localhost%s in another tab
3. Click "Start Call"
4. Check webrtc-internals for "firCount" in outbound-rtp stats

`, *addr)

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	cfg.KeyFrameInterval = *interval
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Start server
	listenAddr, err := srv.Start()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Infof("Listening on %s", listenAddr)

	// Block forever
	select {}
}
