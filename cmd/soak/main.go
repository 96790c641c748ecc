// Soak test runner for long-duration codec testing.
//
// This tool builds random batches of FIR, RPSI and PLI packets, packs them
// into compound packets through rtcpfb.Writer with a random MTU, parses
// every compound packet back and compares the result. It monitors memory
// over extended periods (up to 24 hours or more).
//
// Usage:
//
//	go run ./cmd/soak -duration 24h
//	go run ./cmd/soak -duration 1h -log-file /var/log/rtcpfb-soak.log
//
// Exposes pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"reflect"
	"runtime"
	"syscall"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcpfb/pkg/rtcpfb"
	"github.com/thesyncim/rtcpfb/pkg/rtcpfb/testutil"
)

const (
	batchInterval         = 10 * time.Millisecond
	maxBatchSize          = 32
	minMTU                = 80 // holds the largest random FIR
	statusIntervalMinutes = 5
	heapLimitMB           = 100
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration      time.Duration
	Batches       int
	Packets       int
	Datagrams     int
	Mismatches    int
	PeakHeapMB    float64
	TotalGCCycles uint32
	Status        string
}

func main() {
	// Parse flags
	duration := flag.Duration("duration", 24*time.Hour, "Test duration (e.g., 1h, 24h)")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	logFile := flag.String("log-file", "", "Also write logs to this file, rotated daily")
	flag.Parse()

	if err := setupLogger(*logFile); err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}

	log.WithFields(log.Fields{
		"duration": *duration,
		"pprof":    fmt.Sprintf("http://localhost:%d/debug/pprof/", *pprofPort),
		"seed":     *seed,
	}).Info("RTCP feedback soak test runner")

	// Start pprof server in background
	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.WithError(err).Warn("pprof server failed")
		}
	}()

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Infof("Received %v, shutting down gracefully...", sig)
		cancel()
	}()

	// Run the soak test
	result := runSoakTest(ctx, *duration, rand.New(rand.NewSource(*seed)))

	// Print final summary
	printSummary(os.Stdout, result)

	// Exit with appropriate status
	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func setupLogger(filePath string) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	if filePath == "" {
		return nil
	}

	writer, err := rotatelogs.New(
		filePath+".%Y%m%d",
		rotatelogs.WithLinkName(filePath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return errors.Wrap(err, "create rotatelogs")
	}
	log.SetOutput(io.MultiWriter(os.Stdout, writer))
	return nil
}

// randomBatch returns between 1 and maxBatchSize random feedback packets.
func randomBatch(rng *rand.Rand) []rtcpfb.Packet {
	return testutil.RandomFeedback(rng, 1+rng.Intn(maxBatchSize))
}

// roundTrip packs batch into compound packets no larger than mtu, parses
// them back and returns the number of datagrams used.
func roundTrip(batch []rtcpfb.Packet, mtu int) (int, error) {
	var decoded []rtcpfb.Packet
	datagrams := 0
	sink := rtcpfb.SinkFunc(func(packet []byte) ([]byte, error) {
		if len(packet) > mtu {
			return nil, errors.Errorf("%d byte datagram exceeds MTU %d", len(packet), mtu)
		}
		datagrams++
		packets, err := rtcpfb.Unmarshal(packet)
		if err != nil {
			return nil, errors.Wrap(err, "parse compound")
		}
		decoded = append(decoded, packets...)
		return packet[:cap(packet)], nil
	})

	if err := rtcpfb.BuildCompound(make([]byte, mtu), sink, batch...); err != nil {
		return datagrams, err
	}
	if !reflect.DeepEqual(batch, decoded) {
		return datagrams, errors.Errorf("decoded %d packets differ from %d built", len(decoded), len(batch))
	}
	return datagrams, nil
}

func runSoakTest(ctx context.Context, duration time.Duration, rng *rand.Rand) SoakResult {
	result := SoakResult{
		Status: "PASS",
	}

	var memStats runtime.MemStats
	startTime := time.Now()
	lastStatusTime := startTime
	statusInterval := time.Duration(statusIntervalMinutes) * time.Minute

	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	log.Info("Starting soak test...")

	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			return result

		case now := <-ticker.C:
			elapsed := now.Sub(startTime)

			// Check if test duration reached
			if elapsed >= duration {
				result.Duration = elapsed
				return result
			}

			batch := randomBatch(rng)
			mtu := minMTU + rng.Intn(rtcpfb.DefaultMTU-minMTU+1)
			datagrams, err := roundTrip(batch, mtu)
			result.Batches++
			result.Packets += len(batch)
			result.Datagrams += datagrams

			if err != nil {
				result.Mismatches++
				result.Status = "FAIL"
				log.WithFields(log.Fields{
					"elapsed": formatDuration(elapsed),
					"mtu":     mtu,
					"packets": len(batch),
					"error":   err.Error(),
				}).Error("Round trip failed")
			}

			// Periodic status output
			if now.Sub(lastStatusTime) >= statusInterval {
				lastStatusTime = now
				runtime.ReadMemStats(&memStats)

				heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
				if heapMB > result.PeakHeapMB {
					result.PeakHeapMB = heapMB
				}
				result.TotalGCCycles = memStats.NumGC

				log.WithFields(log.Fields{
					"elapsed":   formatDuration(elapsed),
					"batches":   result.Batches,
					"packets":   result.Packets,
					"datagrams": result.Datagrams,
					"heap_mb":   fmt.Sprintf("%.2f", heapMB),
					"num_gc":    memStats.NumGC,
				}).Info("Status")

				if heapMB > heapLimitMB {
					log.Errorf("Memory limit exceeded: %.2f MB", heapMB)
					result.Status = "FAIL"
				}
			}
		}
	}
}

func printSummary(w io.Writer, result SoakResult) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Soak Test Complete\n")
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "Duration:          %v\n", result.Duration.Round(time.Second))
	fmt.Fprintf(w, "Batches:           %d\n", result.Batches)
	fmt.Fprintf(w, "Packets:           %d\n", result.Packets)
	fmt.Fprintf(w, "Datagrams:         %d\n", result.Datagrams)
	fmt.Fprintf(w, "Mismatches:        %d\n", result.Mismatches)
	fmt.Fprintf(w, "Peak HeapAlloc:    %.2f MB\n", result.PeakHeapMB)
	fmt.Fprintf(w, "Total GC cycles:   %d\n", result.TotalGCCycles)
	fmt.Fprintf(w, "Status:            %s\n", result.Status)
	fmt.Fprintf(w, "\n")

	// Pass criteria
	fmt.Fprintf(w, "Pass Criteria:\n")
	fmt.Fprintf(w, "  - No panics:            %s\n", checkMark(true))
	fmt.Fprintf(w, "  - Peak memory < 100 MB: %s\n", checkMark(result.PeakHeapMB < heapLimitMB))
	fmt.Fprintf(w, "  - No mismatches:        %s\n", checkMark(result.Mismatches == 0))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
