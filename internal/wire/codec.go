package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/hyp3rd/ewrap"
	"github.com/ugorji/go/codec"

	"github.com/hyp3rd/lateralcache/internal/sentinel"
)

const (
	headerSize = 4
	// DefaultMaxFrameSize bounds the body a peer may announce in a frame header.
	DefaultMaxFrameSize = 64 << 20
)

// DecodeError reports a truncated or corrupt frame. It matches both sentinel.ErrDecode
// and the underlying cause with errors.Is.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return sentinel.ErrDecode.Error() + ": " + e.Reason
	}

	return sentinel.ErrDecode.Error() + ": " + e.Reason + ": " + e.Err.Error()
}

// Unwrap exposes the taxonomy sentinel and the cause.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{sentinel.ErrDecode}
	}

	return []error{sentinel.ErrDecode, e.Err}
}

// Codec writes and reads frames: a 4 byte big endian body length followed by a CBOR body.
// A Codec is safe for concurrent use; callers serialize access to the underlying stream.
type Codec struct {
	handle       *codec.CborHandle
	maxFrameSize uint32
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithMaxFrameSize overrides the maximum accepted body size.
func WithMaxFrameSize(n uint32) CodecOption {
	return func(c *Codec) {
		if n > 0 {
			c.maxFrameSize = n
		}
	}
}

// NewCodec returns a CBOR frame codec.
func NewCodec(opts ...CodecOption) *Codec {
	h := &codec.CborHandle{}
	h.Canonical = true

	c := &Codec{handle: h, maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Marshal encodes v into a complete frame (header + body).
func (c *Codec) Marshal(v any) ([]byte, error) {
	body := make([]byte, 0, 64)

	err := codec.NewEncoderBytes(&body, c.handle).Encode(v)
	if err != nil {
		return nil, ewrap.Wrap(err, "encode frame body")
	}

	if uint64(len(body)) > uint64(c.maxFrameSize) {
		return nil, ewrap.Wrapf(sentinel.ErrFrameTooLarge, "body %d bytes", len(body))
	}

	frame := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body))) //nolint:gosec
	copy(frame[headerSize:], body)

	return frame, nil
}

// Unmarshal decodes a frame body (without header) into v.
func (c *Codec) Unmarshal(body []byte, v any) error {
	err := codec.NewDecoderBytes(body, c.handle).Decode(v)
	if err != nil {
		return &DecodeError{Reason: "corrupt body", Err: err}
	}

	return nil
}

// WriteFrame encodes v and writes the whole frame with a single Write.
func (c *Codec) WriteFrame(w io.Writer, v any) error {
	frame, err := c.Marshal(v)
	if err != nil {
		return err
	}

	_, err = w.Write(frame)

	return err
}

// ReadFrame reads one frame from r and decodes it into v. A stream that ends cleanly before a
// header yields io.EOF unchanged; anything shorter than the announced frame is a DecodeError.
func (c *Codec) ReadFrame(r io.Reader, v any) error {
	var hdr [headerSize]byte

	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return io.EOF
		}

		if n > 0 {
			return &DecodeError{Reason: "truncated header", Err: err}
		}

		return err
	}

	size := binary.BigEndian.Uint32(hdr[:])
	if size > c.maxFrameSize {
		return &DecodeError{Reason: "frame too large", Err: sentinel.ErrFrameTooLarge}
	}

	body := make([]byte, size)

	_, err = io.ReadFull(r, body)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &DecodeError{Reason: "truncated body", Err: io.ErrUnexpectedEOF}
		}

		return err
	}

	return c.Unmarshal(body, v)
}

// WriteMessage writes a Message frame.
func (c *Codec) WriteMessage(w io.Writer, m *Message) error { return c.WriteFrame(w, m) }

// ReadMessage reads a Message frame and rejects unknown commands.
func (c *Codec) ReadMessage(r io.Reader) (*Message, error) {
	var m Message

	err := c.ReadFrame(r, &m)
	if err != nil {
		return nil, err
	}

	if !m.Command.Valid() {
		return nil, &DecodeError{Reason: "command " + m.Command.String(), Err: sentinel.ErrUnknownCommand}
	}

	return &m, nil
}

// WriteResponse writes a Response frame.
func (c *Codec) WriteResponse(w io.Writer, resp *Response) error { return c.WriteFrame(w, resp) }

// ReadResponse reads a Response frame.
func (c *Codec) ReadResponse(r io.Reader) (*Response, error) {
	var resp Response

	err := c.ReadFrame(r, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}
