// Package testutil provides testing utilities for the rtcpfb packages:
// literal wire vectors, random packet generators, a replayable corpus of
// captured RTCP and browser automation for E2E tests.
//
// Note: This package imports rtcpfb. Tests inside package rtcpfb that use it
// must be written as external tests (package rtcpfb_test).
package testutil

import (
	"math/rand"

	"github.com/thesyncim/rtcpfb/pkg/rtcpfb"
)

// FirPacket is a FIR from 0x12345678 asking 0x23456789 for a key frame
// with sequence number 13.
var FirPacket = []byte{
	0x84, 206, 0x00, 0x04,
	0x12, 0x34, 0x56, 0x78, // sender
	0x00, 0x00, 0x00, 0x00, // media (unused)
	0x23, 0x45, 0x67, 0x89, // request ssrc
	0x0d, 0x00, 0x00, 0x00, // seq nr, reserved
}

// RpsiPacket is an RPSI from 0x12345678 about media 0x23456789 naming
// picture 0x106143 of payload type 100.
var RpsiPacket = []byte{
	0x83, 206, 0x00, 0x04,
	0x12, 0x34, 0x56, 0x78,
	0x23, 0x45, 0x67, 0x89,
	0x18, 0x64, 0xc1, 0xc2,
	0x43, 0x00, 0x00, 0x00,
}

// PliPacket is a PLI from 0x12345678 about media 0x23456789.
var PliPacket = []byte{
	0x81, 206, 0x00, 0x02,
	0x12, 0x34, 0x56, 0x78,
	0x23, 0x45, 0x67, 0x89,
}

// ReceiverReportPacket is an empty receiver report from 0x12345678.
var ReceiverReportPacket = []byte{
	0x80, 201, 0x00, 0x01,
	0x12, 0x34, 0x56, 0x78,
}

// Compound returns the concatenation of packets.
func Compound(packets ...[]byte) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, p...)
	}
	return out
}

// RandomFir returns a FIR with between 1 and maxRequests requests.
func RandomFir(rng *rand.Rand, maxRequests int) *rtcpfb.Fir {
	fir := rtcpfb.NewFir(rng.Uint32())
	n := 1 + rng.Intn(maxRequests)
	for i := 0; i < n; i++ {
		fir.AddRequest(rng.Uint32(), uint8(rng.Intn(256)))
	}
	return fir
}

// RandomRpsi returns an RPSI whose picture id has a random bit length, so
// every native-string length from 1 to 10 bytes is exercised.
func RandomRpsi(rng *rand.Rand) *rtcpfb.Rpsi {
	bitLen := uint(rng.Intn(65))
	var id uint64
	if bitLen > 0 {
		id = rng.Uint64()>>(64-bitLen) | 1<<(bitLen-1)
	}
	return &rtcpfb.Rpsi{
		SenderSSRC:  rng.Uint32(),
		MediaSSRC:   rng.Uint32(),
		PayloadType: uint8(rng.Intn(128)),
		PictureID:   id,
	}
}

// RandomPli returns a PLI with random SSRCs.
func RandomPli(rng *rand.Rand) *rtcpfb.Pli {
	return &rtcpfb.Pli{SenderSSRC: rng.Uint32(), MediaSSRC: rng.Uint32()}
}

// RandomFeedback returns n random FIR, RPSI and PLI packets.
func RandomFeedback(rng *rand.Rand, n int) []rtcpfb.Packet {
	packets := make([]rtcpfb.Packet, n)
	for i := range packets {
		switch rng.Intn(3) {
		case 0:
			packets[i] = RandomFir(rng, 8)
		case 1:
			packets[i] = RandomRpsi(rng)
		default:
			packets[i] = RandomPli(rng)
		}
	}
	return packets
}
