// Package wire implements the binary request/response frame format: a
// fixed header followed by a body manipulated through a typed field
// cursor. It generalizes the teacher's http10 package (CRLF text framing,
// read with a cursor-advancing *bufio.Reader) to a length-prefixed binary
// protocol, the same way http10/response.go assembles a status line plus
// headers plus body before a single Write.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderSize is the fixed size, in bytes, of the frame header that
// precedes every body.
const HeaderSize = 8

// Errors returned by frame and field operations.
var (
	// ErrBadRequest mirrors http10.ErrBadRequest and names a frame whose
	// header or body is malformed. No function in this package returns
	// it: ReadFrame reports the underlying io error instead.
	ErrBadRequest = errors.New("wire: malformed frame")
	// ErrEOM is returned by the last successful field read of a body; it
	// is a success sentinel, not a failure (§7 of the request core spec).
	ErrEOM = errors.New("wire: end of message")
	// ErrShortBody is returned when a field read would run past the
	// declared body length without having reached the last field exactly.
	ErrShortBody = errors.New("wire: read past body end")
)

// Type is the 1-byte frame type tag (request or response kind).
type Type uint8

// Frame is one decoded wire message: the declared word count, type,
// flags, and the raw body bytes (words*8 long).
type Frame struct {
	Words uint32
	Type  Type
	Flags uint8
	Body  []byte
}

// ReadFrame reads one frame from r: the 8-byte header, then Words*8 body
// bytes. It never attempts to interpret the body; use NewReader over the
// returned Frame for that.
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	words := binary.LittleEndian.Uint32(hdr[0:4])
	typ := Type(hdr[4])
	flags := hdr[5]
	// hdr[6:8] reserved, ignored on read.

	body := make([]byte, int(words)*8)
	if len(body) > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}
	return &Frame{Words: words, Type: typ, Flags: flags, Body: body}, nil
}

// WriteFrame writes f's header followed by its body in one call, the way
// http10's write() assembles status line, headers and body before a
// single conn.Write.
func WriteFrame(w io.Writer, f *Frame) error {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], f.Words)
	hdr[4] = byte(f.Type)
	hdr[5] = f.Flags
	// hdr[6:8] reserved, left zero.
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(f.Body) > 0 {
		if _, err := w.Write(f.Body); err != nil {
			return err
		}
	}
	return nil
}

// NewFrame builds a Frame of the given type wrapping body, computing
// Words from its length. body's length must already be a multiple of 8;
// Writer pads every field it appends for exactly this reason.
func NewFrame(typ Type, body []byte) *Frame {
	return &Frame{Words: uint32(len(body) / 8), Type: typ, Body: body}
}
