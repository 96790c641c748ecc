package rtcpfb

import (
	"github.com/pion/rtcp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Packet is a single RTCP packet decoded or built by this package.
// The set of implementations is closed: *Fir, *Rpsi, *Pli, *Remb and *Raw.
// Every Packet also satisfies pion's rtcp.Packet so it can be handed to
// pion writers and interceptors directly.
type Packet interface {
	rtcp.Packet

	// BlockLength returns the exact number of bytes the packet occupies
	// on the wire, header included.
	BlockLength() int

	// marshalTo writes exactly BlockLength bytes into b.
	marshalTo(b []byte)
}

var (
	_ Packet = (*Fir)(nil)
	_ Packet = (*Rpsi)(nil)
	_ Packet = (*Pli)(nil)
	_ Packet = (*Remb)(nil)
	_ Packet = (*Raw)(nil)
)

// ParsePacket decodes one packet given its parsed header and the payload
// bytes following it (padding excluded). Feedback messages this package
// models are decoded into their own types; everything else becomes *Raw.
func ParsePacket(h CommonHeader, payload []byte) (Packet, error) {
	if len(payload) < h.PayloadSizeBytes {
		return nil, errors.Wrapf(ErrInvalidLength,
			"header declares %d payload bytes, have %d", h.PayloadSizeBytes, len(payload))
	}
	payload = payload[:h.PayloadSizeBytes]

	if h.PacketType == TypePSFB {
		switch h.CountOrFormat {
		case FormatFIR:
			return ParseFir(h, payload)
		case FormatRPSI:
			return ParseRpsi(h, payload)
		case FormatPLI:
			return ParsePli(h, payload)
		case FormatREMB:
			if isREMB(payload) {
				return ParseRemb(h, payload)
			}
		}
	}
	return parseRaw(h, payload), nil
}

// Walk iterates over the packets of a compound RTCP packet. For every packet
// whose header parses, fn is called with the header and the packet's payload.
// Walk stops at the first header that cannot be parsed and returns that
// error, or at the first error returned by fn.
func Walk(data []byte, fn func(h CommonHeader, payload []byte) error) error {
	for offset := 0; offset < len(data); {
		h, n, err := ParseCommonHeader(data[offset:])
		if err != nil {
			return errors.Wrapf(err, "packet at offset %d", offset)
		}
		start := offset + headerLength
		if err := fn(h, data[start:start+h.PayloadSizeBytes]); err != nil {
			return err
		}
		offset += n
	}
	return nil
}

// Unmarshal decodes every packet of a compound RTCP packet.
//
// Sub-packets that fail validation are logged and dropped and decoding
// continues with the next one, since the header still says where it ends.
// When a header itself cannot be parsed the rest of the buffer cannot be
// delimited; Unmarshal then returns the packets decoded so far together
// with the error.
func Unmarshal(data []byte) ([]Packet, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrTruncatedHeader, "empty rtcp packet")
	}

	var packets []Packet
	err := Walk(data, func(h CommonHeader, payload []byte) error {
		p, err := ParsePacket(h, payload)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"function": "Unmarshal",
				"type":     h.PacketType,
				"format":   h.CountOrFormat,
				"length":   h.LengthWords,
				"error":    err.Error(),
			}).Warn("Dropping malformed RTCP packet")
			return nil
		}
		packets = append(packets, p)
		return nil
	})
	return packets, err
}

// marshalPacket allocates a buffer for p and serializes it.
func marshalPacket(p Packet) []byte {
	b := make([]byte, p.BlockLength())
	p.marshalTo(b)
	return b
}

// checkType panics when h does not describe the packet type/format a
// parser was called for. Dispatch is the caller's job.
func checkType(h CommonHeader, packetType, format uint8, name string) {
	if h.PacketType != packetType || h.CountOrFormat != format {
		panic("rtcpfb: " + name + " parser called with " + h.String())
	}
}

// unmarshalOne parses a single packet of the expected type from raw bytes,
// used by the rtcp.Packet Unmarshal methods.
func unmarshalOne(data []byte, packetType, format uint8) (CommonHeader, []byte, error) {
	h, n, err := ParseCommonHeader(data)
	if err != nil {
		return h, nil, err
	}
	if n != len(data) {
		return h, nil, errors.Wrapf(ErrInvalidLength, "%d trailing bytes", len(data)-n)
	}
	if h.PacketType != packetType || h.CountOrFormat != format {
		return h, nil, errors.Wrapf(ErrWrongType, "got %s", h.String())
	}
	return h, data[headerLength : headerLength+h.PayloadSizeBytes], nil
}
