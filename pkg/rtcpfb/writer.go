package rtcpfb

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sink receives compound packets from a Writer whenever its buffer cannot
// hold the next packet, and on Flush.
//
// packet holds the completed bytes and is only valid until Flush returns.
// The returned buffer is where writing continues; its length is the new
// capacity and it may be packet's own backing array. Returning an error
// aborts the write.
type Sink interface {
	Flush(packet []byte) (next []byte, err error)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(packet []byte) ([]byte, error)

// Flush calls f(packet).
func (f SinkFunc) Flush(packet []byte) ([]byte, error) {
	return f(packet)
}

// Writer packs RTCP packets back to back into a buffer and hands the buffer
// to a Sink each time it fills, so a stream of packets of any total size
// becomes a sequence of compound packets no larger than the buffer.
//
// Writer is not safe for concurrent use. The Sink runs on the caller's
// goroutine from inside Append and Flush.
type Writer struct {
	buf    []byte
	cursor int
	sink   Sink
}

// NewWriter returns a Writer filling buf and flushing to sink.
func NewWriter(buf []byte, sink Sink) *Writer {
	return &Writer{buf: buf, sink: sink}
}

// Len returns the number of bytes waiting in the buffer.
func (w *Writer) Len() int {
	return w.cursor
}

// Cap returns the size of the current buffer.
func (w *Writer) Cap() int {
	return len(w.buf)
}

// Append serializes p after the packets already in the buffer. When p does
// not fit, the buffered bytes are flushed first. A packet larger than an
// empty buffer fails with ErrBlockTooLarge. When the sink fails, the bytes
// it was given stay in the buffer and the error wraps ErrSinkFailed.
func (w *Writer) Append(p Packet) error {
	length := p.BlockLength()
	for w.cursor+length > len(w.buf) {
		if w.cursor == 0 {
			return errors.Wrapf(ErrBlockTooLarge, "%d byte packet, %d byte buffer", length, len(w.buf))
		}
		if err := w.flush(); err != nil {
			return err
		}
	}

	p.marshalTo(w.buf[w.cursor : w.cursor+length])
	w.cursor += length
	return nil
}

// Flush hands any buffered bytes to the sink. It does nothing when the
// buffer is empty.
func (w *Writer) Flush() error {
	if w.cursor == 0 {
		return nil
	}
	return w.flush()
}

func (w *Writer) flush() error {
	next, err := w.sink.Flush(w.buf[:w.cursor])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailed, err)
	}
	w.buf = next
	w.cursor = 0
	return nil
}

// BuildCompound writes packets into buf, flushing to sink as often as
// needed, and flushes the remainder. It returns ErrEmptyCompound when
// there is nothing to write.
func BuildCompound(buf []byte, sink Sink, packets ...Packet) error {
	if len(packets) == 0 {
		return ErrEmptyCompound
	}
	w := NewWriter(buf, sink)
	for _, p := range packets {
		if err := w.Append(p); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Marshal serializes a single packet.
func Marshal(p Packet) ([]byte, error) {
	return MarshalCompound(p)
}

// MarshalCompound serializes packets into one compound packet. Unlike
// BuildCompound the result is never split, so the size is bounded only by
// the 16-bit length field of each packet.
func MarshalCompound(packets ...Packet) ([]byte, error) {
	size := 0
	for _, p := range packets {
		size += p.BlockLength()
	}

	var out []byte
	sink := SinkFunc(func(packet []byte) ([]byte, error) {
		if out != nil {
			return nil, ErrFragmented
		}
		out = packet
		return nil, nil
	})
	if err := BuildCompound(make([]byte, size), sink, packets...); err != nil {
		return nil, err
	}
	if len(out) != size {
		return nil, errors.Wrapf(ErrFragmented, "wrote %d of %d bytes", len(out), size)
	}
	return out, nil
}
