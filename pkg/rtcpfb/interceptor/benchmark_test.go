// Package interceptor benchmarks for the feedback hot paths.
//
// How to run:
//
//	go test -bench=. -benchmem ./pkg/rtcpfb/interceptor/...
//
// Incoming RTCP is decoded on every read, so processRTCP should allocate
// only for the packets it hands to callbacks. Flush reuses a pooled buffer
// and allocates one copy per datagram for the RTCP writer.
package interceptor

import (
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"

	"github.com/thesyncim/rtcpfb/pkg/rtcpfb"
	"github.com/thesyncim/rtcpfb/pkg/rtcpfb/testutil"
)

// discardRTCPWriter drops everything written to it.
type discardRTCPWriter struct{}

func (discardRTCPWriter) Write(pkts []rtcp.Packet, _ interceptor.Attributes) (int, error) {
	return len(pkts), nil
}

// BenchmarkProcessRTCP_Compound benchmarks decoding a typical compound packet
// carrying a receiver report and key-frame feedback.
func BenchmarkProcessRTCP_Compound(b *testing.B) {
	i := NewFeedbackInterceptor(WithLogger(quietLogger()))
	defer i.Close()

	compound := testutil.Compound(
		testutil.ReceiverReportPacket,
		testutil.FirPacket,
		testutil.PliPacket,
	)

	b.ReportAllocs()
	b.SetBytes(int64(len(compound)))
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		i.processRTCP(compound)
	}
}

// BenchmarkFlush benchmarks packing queued feedback into datagrams.
func BenchmarkFlush(b *testing.B) {
	i := NewFeedbackInterceptor(WithLogger(quietLogger()), WithFlushInterval(time.Hour))
	defer i.Close()
	i.BindRTCPWriter(discardRTCPWriter{})

	fir := rtcpfb.NewFir(1).AddRequest(0x1234, 0)
	pli := &rtcpfb.Pli{SenderSSRC: 1, MediaSSRC: 0x1234}

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		i.enqueue(fir)
		i.enqueue(pli)
		if err := i.Flush(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStreamState_Update benchmarks the per-packet activity update.
func BenchmarkStreamState_Update(b *testing.B) {
	state := newStreamState(0x12345678, FeedbackCapabilities{FIR: true}, time.Now())
	now := time.Now()

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		state.UpdateLastPacket(now)
	}
}

// BenchmarkBufferPool_GetPut benchmarks the flush buffer pool.
func BenchmarkBufferPool_GetPut(b *testing.B) {
	pool := newBufferPool(rtcpfb.DefaultMTU)

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		buf := pool.get()
		(*buf)[0] = 0x80
		pool.put(buf)
	}
}
