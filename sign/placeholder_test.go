package sign

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/mattetti/filebuffer"
)

func TestByteRangeWidthInvariance(t *testing.T) {
	cases := [][3]int64{
		{0, 0, 0},
		{1234, 5678, 90},
		{99999998, 99999999, 99999999},
		{512, 8706, 1},
	}

	for _, c := range cases {
		t.Run(fmt.Sprintf("%d_%d_%d", c[0], c[1], c[2]), func(t *testing.T) {
			var buf bytes.Buffer
			placeholder := &ByteRangePlaceholder{}
			placeholder.serializeInto(&buf)

			if buf.Len() != ByteRangeWidth {
				t.Fatalf("serialized width %d, want %d", buf.Len(), ByteRangeWidth)
			}

			out := filebuffer.New(buf.Bytes())
			if _, err := out.Seek(0, io.SeekEnd); err != nil {
				t.Fatal(err)
			}
			placeholder.bind(0)

			if err := placeholder.Fill(out, c[0], c[1], c[1]+c[2]); err != nil {
				t.Fatalf("fill: %v", err)
			}
			if out.Buff.Len() != ByteRangeWidth {
				t.Fatalf("width changed after fill: %d", out.Buff.Len())
			}

			want := fmt.Sprintf("[ %08d %08d %08d %08d ]", 0, c[0], c[1], c[2])
			if got := out.Buff.String(); got != want {
				t.Fatalf("filled byte range %q, want %q", got, want)
			}
		})
	}
}

func TestByteRangeFillTwice(t *testing.T) {
	var buf bytes.Buffer
	placeholder := &ByteRangePlaceholder{}
	placeholder.serializeInto(&buf)
	placeholder.bind(0)

	out := filebuffer.New(buf.Bytes())
	if err := placeholder.Fill(out, 10, 20, 30); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if err := placeholder.Fill(out, 10, 20, 30); err == nil {
		t.Fatal("second fill should fail")
	}
}

func TestByteRangeFillWithoutOffset(t *testing.T) {
	placeholder := &ByteRangePlaceholder{}
	out := filebuffer.New(nil)
	if err := placeholder.Fill(out, 10, 20, 30); err == nil {
		t.Fatal("fill without a recorded offset should fail")
	}
}

func TestByteRangeOverflow(t *testing.T) {
	var buf bytes.Buffer
	placeholder := &ByteRangePlaceholder{}
	placeholder.serializeInto(&buf)
	placeholder.bind(0)

	out := filebuffer.New(buf.Bytes())
	err := placeholder.Fill(out, 100000000, 100000010, 100000020)
	if !errors.Is(err, ErrDocumentTooLarge) {
		t.Fatalf("got %v, want ErrDocumentTooLarge", err)
	}
}

func TestContentsPlaceholderOffsets(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("<< /Contents ")
	prefix := int64(buf.Len())

	placeholder := NewContentsPlaceholder(64)
	placeholder.serializeInto(&buf)
	buf.WriteString(" >>")
	placeholder.bind(1000)

	start, end, err := placeholder.Offsets()
	if err != nil {
		t.Fatal(err)
	}
	if want := 1000 + prefix; start != want {
		t.Fatalf("start %d, want %d", start, want)
	}
	if want := start + 64 + 2; end != want {
		t.Fatalf("end %d, want %d", end, want)
	}

	serialized := buf.Bytes()[prefix : prefix+64+2]
	if serialized[0] != '<' || serialized[len(serialized)-1] != '>' {
		t.Fatalf("placeholder not bracketed: %q", serialized)
	}
	if !bytes.Equal(serialized[1:len(serialized)-1], bytes.Repeat([]byte("0"), 64)) {
		t.Fatal("placeholder payload is not all zeros")
	}
}

func TestContentsPlaceholderUnbound(t *testing.T) {
	placeholder := NewContentsPlaceholder(0)
	if placeholder.Reserved != DefaultReservation {
		t.Fatalf("default reservation %d, want %d", placeholder.Reserved, DefaultReservation)
	}
	if _, _, err := placeholder.Offsets(); err == nil {
		t.Fatal("offsets before serialization should fail")
	}
}
