package rtcpfb

import "github.com/pkg/errors"

// Data validation failures returned by the parse path. Packets arriving from
// the network are untrusted; callers are expected to log and drop packets
// failing with one of these and keep processing the rest of a compound
// packet. Use errors.Is to match, the returned errors carry context.
var (
	// ErrTruncatedHeader is returned when fewer than 4 bytes remain for an
	// RTCP common header.
	ErrTruncatedHeader = errors.New("rtcp header truncated")

	// ErrInvalidVersion is returned when the version field is not 2.
	ErrInvalidVersion = errors.New("invalid rtcp version")

	// ErrInvalidLength is returned when a declared length disagrees with
	// the bytes available or with the layout of the message.
	ErrInvalidLength = errors.New("invalid rtcp packet length")

	// ErrInvalidPadding is returned for malformed RTCP padding or an RPSI
	// padding-bit count that is not a whole number of bytes.
	ErrInvalidPadding = errors.New("invalid rtcp padding")

	// ErrInvalidNativeString is returned when an RPSI picture id is not a
	// well-formed native string.
	ErrInvalidNativeString = errors.New("invalid rpsi native string")

	// ErrWrongType is returned by Unmarshal methods of concrete packets when
	// the bytes hold a different packet type or format.
	ErrWrongType = errors.New("wrong rtcp packet type")
)

// Build path failures.
var (
	// ErrBlockTooLarge is returned when a packet does not fit even in an
	// empty destination buffer, so flushing cannot make progress.
	ErrBlockTooLarge = errors.New("rtcp packet larger than buffer")

	// ErrFragmented is returned by single-buffer builds when the packets
	// would need more than one buffer.
	ErrFragmented = errors.New("rtcp packets do not fit in one buffer")

	// ErrEmptyCompound is returned when building a compound packet from no
	// packets at all.
	ErrEmptyCompound = errors.New("no rtcp packets to build")

	// ErrSinkFailed wraps an error reported by a Sink while flushing.
	ErrSinkFailed = errors.New("rtcp sink failed")
)
