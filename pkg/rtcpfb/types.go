// Package rtcpfb implements parsing and serialization of RTCP feedback
// messages (RFC 4585, RFC 5104) and the compound-packet assembly used to
// pack many of them into MTU-sized datagrams.
package rtcpfb

// RTCP packet types relevant to feedback. See RFC 4585 Section 6.1.
const (
	// TypeRTPFB is the transport-layer feedback packet type.
	TypeRTPFB uint8 = 205
	// TypePSFB is the payload-specific feedback packet type.
	TypePSFB uint8 = 206
)

// Payload-specific feedback message types, carried in the FMT field.
const (
	FormatPLI  uint8 = 1  // Picture Loss Indication (RFC 4585)
	FormatSLI  uint8 = 2  // Slice Loss Indication (RFC 4585)
	FormatRPSI uint8 = 3  // Reference Picture Selection Indication (RFC 4585)
	FormatFIR  uint8 = 4  // Full Intra Request (RFC 5104)
	FormatREMB uint8 = 15 // Application layer feedback, used for REMB
)

const (
	rtcpVersion = 2

	// headerLength is the size of the RTCP common header.
	headerLength = 4

	// commonFeedbackLength is the size of the sender/media SSRC prefix
	// shared by every RTPFB and PSFB message.
	commonFeedbackLength = 8

	// maxCountOrFormat is the largest value the 5-bit RC/FMT field holds.
	maxCountOrFormat = 0x1f

	// maxLengthWords is the largest value of the 16-bit length field.
	maxLengthWords = 0xffff
)

// DefaultMTU is the buffer size used when building compound packets
// without an explicit destination buffer.
const DefaultMTU = 1500
