// rtcpdump prints the RTCP feedback found in a packet capture.
//
// UDP payloads whose first byte carries RTP version 2 are demultiplexed
// into RTP and RTCP by payload type (RFC 5761). RTCP payloads are decoded
// with rtcpfb; FIR, PLI, RPSI and REMB are printed, other packet types are
// only counted. SRTCP is not decrypted, so captures must be unencrypted.
//
// Usage:
//
//	go run ./cmd/rtcpdump -f capture.pcapng
//	go run ./cmd/rtcpdump -f capture.pcap -port 5005 -all
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcpfb/pkg/rtcpfb"
)

// pcapngMagic is the block type of the section header that starts every
// pcapng file, in either byte order.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

func main() {
	var filename string
	var port uint
	var all, verbose bool
	flag.StringVar(&filename, "f", "", "the pcap or pcapng filename, like ./t.pcapng")
	flag.UintVar(&port, "port", 0, "only decode UDP packets from or to this port (0 for all)")
	flag.BoolVar(&all, "all", false, "print every RTCP packet, not only feedback")
	flag.BoolVar(&verbose, "v", false, "log malformed packets")
	flag.Parse()

	if filename == "" || port > 0xffff {
		flag.Usage()
		os.Exit(1)
	}
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	d := &dumper{out: os.Stdout, port: uint16(port), all: all}
	if err := d.dumpFile(filename); err != nil {
		logrus.WithError(err).Fatal("rtcpdump failed")
	}
	d.printSummary()
}

// summary counts what a capture contained.
type summary struct {
	UDPPackets  int
	RTPPackets  int
	RTCPPackets int
	Malformed   int
	ByName      map[string]int
}

type dumper struct {
	out   io.Writer
	port  uint16
	all   bool
	stats summary
}

func (d *dumper) dumpFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "open pcap %v", filename)
	}
	defer f.Close()
	return d.dump(f)
}

// dump reads a pcap or pcapng stream and decodes every UDP payload in it.
func (d *dumper) dump(r io.Reader) error {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return errors.Wrap(err, "read capture header")
	}

	var source *gopacket.PacketSource
	if string(magic) == string(pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return errors.Wrap(err, "new pcapng reader")
		}
		source = gopacket.NewPacketSource(ng, ng.LinkType())
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return errors.Wrap(err, "new pcap reader")
		}
		source = gopacket.NewPacketSource(pr, pr.LinkType())
	}

	if d.stats.ByName == nil {
		d.stats.ByName = make(map[string]int)
	}

	var packetNumber uint64
	for packet := range source.Packets() {
		packetNumber++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if d.port != 0 && uint16(udp.SrcPort) != d.port && uint16(udp.DstPort) != d.port {
			continue
		}
		d.stats.UDPPackets++

		ci := packet.Metadata().CaptureInfo
		d.handlePayload(packetNumber, ci, udp)
	}
	return nil
}

func (d *dumper) handlePayload(packetNumber uint64, ci gopacket.CaptureInfo, udp *layers.UDP) {
	payload := udp.Payload
	switch classify(payload) {
	case kindRTP:
		var h rtp.Header
		if _, err := h.Unmarshal(payload); err == nil {
			d.stats.RTPPackets++
		}
	case kindRTCP:
		packets, err := rtcpfb.Unmarshal(payload)
		if err != nil {
			d.stats.Malformed++
			logrus.WithFields(logrus.Fields{
				"function": "handlePayload",
				"packet":   packetNumber,
				"error":    err.Error(),
			}).Debug("Malformed compound RTCP packet")
		}
		for _, p := range packets {
			d.stats.RTCPPackets++
			name := packetName(p)
			d.stats.ByName[name]++
			if name == "other" && !d.all {
				continue
			}
			fmt.Fprintf(d.out, "#%v %v %v=>%v %v\n",
				packetNumber,
				ci.Timestamp.Format("15:04:05.000"),
				uint16(udp.SrcPort), uint16(udp.DstPort),
				p)
		}
	}
}

type payloadKind int

const (
	kindOther payloadKind = iota
	kindRTP
	kindRTCP
)

// classify tells RTP from RTCP on a multiplexed port: both start with
// version 2, and RTCP packet types occupy 192-223 where RTP would carry a
// marker bit and payload type 64-95.
func classify(payload []byte) payloadKind {
	if len(payload) < 4 || payload[0] < 128 || payload[0] > 191 {
		return kindOther
	}
	if payload[1] >= 192 && payload[1] <= 223 {
		return kindRTCP
	}
	return kindRTP
}

func packetName(p rtcpfb.Packet) string {
	switch p.(type) {
	case *rtcpfb.Fir:
		return "FIR"
	case *rtcpfb.Pli:
		return "PLI"
	case *rtcpfb.Rpsi:
		return "RPSI"
	case *rtcpfb.Remb:
		return "REMB"
	default:
		return "other"
	}
}

func (d *dumper) printSummary() {
	fmt.Fprintf(d.out, "\n")
	fmt.Fprintf(d.out, "UDP packets:   %d\n", d.stats.UDPPackets)
	fmt.Fprintf(d.out, "RTP packets:   %d\n", d.stats.RTPPackets)
	fmt.Fprintf(d.out, "RTCP packets:  %d\n", d.stats.RTCPPackets)
	for _, name := range []string{"FIR", "PLI", "RPSI", "REMB", "other"} {
		fmt.Fprintf(d.out, "  %-5s        %d\n", name+":", d.stats.ByName[name])
	}
	fmt.Fprintf(d.out, "Malformed:     %d\n", d.stats.Malformed)
}
