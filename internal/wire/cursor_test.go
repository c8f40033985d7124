package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Uint32(123)
	f := w.Frame(Type(7))

	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Type != Type(7) || got.Words != 1 {
		t.Fatalf("got %+v", got)
	}
	// The 4-byte field sits in an 8-byte (one-word) body, so reading it
	// leaves the cursor short of the end: no EOM yet.
	r := NewReader(got.Body)
	v, err := r.Uint32()
	if v != 123 || err != nil {
		t.Fatalf("got v=%d err=%v, want 123/nil", v, err)
	}
}

func TestTextRoundTripPadsTo8(t *testing.T) {
	w := NewWriter()
	w.Text("hello")
	body := w.Bytes()
	if len(body)%8 != 0 {
		t.Fatalf("body not 8-aligned: %d", len(body))
	}
	if len(body) != 8 {
		t.Fatalf("expected 8 bytes for \"hello\\0\"+pad, got %d", len(body))
	}
	r := NewReader(body)
	s, err := r.Text()
	if s != "hello" || !errors.Is(err, ErrEOM) {
		t.Fatalf("got s=%q err=%v", s, err)
	}
}

// TestSingleColumnQueryBody reproduces scenario S5: a single INTEGER(1)
// row header word followed by one int64 value, 16 bytes total, EOM on the
// last read.
func TestSingleColumnQueryBody(t *testing.T) {
	w := NewWriter()
	w.RowHeader([]uint8{1}) // row header: column 0 = INTEGER in the low nibble
	w.Int64(-12)
	body := w.Bytes()
	if len(body) != 16 {
		t.Fatalf("got %d bytes, want 16", len(body))
	}

	r := NewReader(body)
	header, err := r.Uint64()
	if err != nil {
		t.Fatalf("header read: %v", err)
	}
	if header&0x0f != 1 {
		t.Fatalf("got header low nibble %d, want 1 (INTEGER)", header&0x0f)
	}
	n, err := r.Int64()
	if n != -12 || !errors.Is(err, ErrEOM) {
		t.Fatalf("got n=%d err=%v, want -12/ErrEOM", n, err)
	}
}

// TestMultiRowMultiColumnQueryBody reproduces scenario S6's 64-byte body:
// row1 header {INTEGER,TEXT,NULL}, values 8,"hello",0;
// row2 header {INTEGER,TEXT,FLOAT}, values -1,"world",3.1415.
func TestMultiRowMultiColumnQueryBody(t *testing.T) {
	const (
		typeInteger = 1
		typeText    = 3
		typeFloat   = 2
		typeNull    = 5
	)
	w := NewWriter()
	w.RowHeader([]uint8{typeInteger, typeText, typeNull})
	w.Int64(8)
	w.Text("hello")
	w.Uint64(0)
	w.RowHeader([]uint8{typeInteger, typeText, typeFloat})
	w.Int64(-1)
	w.Text("world")
	w.Double(3.1415)
	body := w.Bytes()

	if len(body) != 64 {
		t.Fatalf("got %d bytes, want 64", len(body))
	}

	r := NewReader(body)
	h1, _ := r.Uint64()
	if h1&0x0f != typeInteger || (h1>>4)&0x0f != typeText || (h1>>8)&0x0f != typeNull {
		t.Fatalf("row1 header mismatch: %x", h1)
	}
	n1, _ := r.Int64()
	s1, _ := r.Text()
	null1, _ := r.Uint64()
	if n1 != 8 || s1 != "hello" || null1 != 0 {
		t.Fatalf("row1 values mismatch: %d %q %d", n1, s1, null1)
	}
	h2, _ := r.Uint64()
	if h2&0x0f != typeInteger || (h2>>4)&0x0f != typeText || (h2>>8)&0x0f != typeFloat {
		t.Fatalf("row2 header mismatch: %x", h2)
	}
	n2, _ := r.Int64()
	s2, _ := r.Text()
	f2, err := r.Double()
	if n2 != -1 || s2 != "world" || f2 != 3.1415 || !errors.Is(err, ErrEOM) {
		t.Fatalf("row2 values mismatch: %d %q %v err=%v", n2, s2, f2, err)
	}
}

// TestPackNibbles checks invariant 6: byte i/2 of the header carries tag i
// in its low nibble when i is even, high nibble when i is odd.
func TestPackNibbles(t *testing.T) {
	cases := []struct {
		name string
		tags []uint8
		want []byte
	}{
		{"empty", nil, []byte{}},
		{"single", []uint8{1}, []byte{0x01}},
		{"pair", []uint8{1, 3}, []byte{0x31}},
		{"odd-count", []uint8{1, 3, 5}, []byte{0x31, 0x05}},
		{"high-nibble-truncation", []uint8{0xff, 0xff}, []byte{0xff}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PackNibbles(tc.tags))
		})
	}
}
