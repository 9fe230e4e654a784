package sign

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultReservation is the default /Contents payload size in hex characters.
const DefaultReservation = 8192

// byteRangeTemplate keeps the serialized array at a constant width for all
// values below 10^8, so it can be rewritten in place after serialization.
const byteRangeTemplate = "[ %08d %08d %08d %08d ]"

// ByteRangeWidth is the serialized width of a ByteRangePlaceholder.
var ByteRangeWidth = len(fmt.Sprintf(byteRangeTemplate, 0, 0, 0, 0))

const maxByteRangeValue = 99999999

// ByteRangePlaceholder is the /ByteRange entry of a signature dictionary.
// It serializes once at fixed width, records where its first byte landed,
// and is filled exactly once after the surrounding document is complete.
type ByteRangePlaceholder struct {
	offset   int64
	recorded bool
	filled   bool
}

// serializeInto writes the zero-valued placeholder and remembers its offset
// relative to the start of buf. bind later turns that into a stream offset.
func (p *ByteRangePlaceholder) serializeInto(buf *bytes.Buffer) {
	p.offset = int64(buf.Len())
	fmt.Fprintf(buf, byteRangeTemplate, 0, 0, 0, 0)
}

func (p *ByteRangePlaceholder) bind(objectStart int64) {
	p.offset += objectStart
	p.recorded = true
}

// Fill writes the final byte-range values over the placeholder. sigStart and
// sigEnd delimit the hex signature literal including its angle brackets; eof
// is the total stream length. The stream position is restored afterwards.
func (p *ByteRangePlaceholder) Fill(out io.WriteSeeker, sigStart, sigEnd, eof int64) error {
	if p.filled {
		return fmt.Errorf("byte range already filled")
	}
	if !p.recorded {
		return fmt.Errorf("could not determine where to write the byte range value")
	}

	values := [4]int64{0, sigStart, sigEnd, eof - sigEnd}
	for _, v := range values {
		if v < 0 || v > maxByteRangeValue {
			return fmt.Errorf("%w: byte range value %d", ErrDocumentTooLarge, v)
		}
	}

	oldPos, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := out.Seek(p.offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, byteRangeTemplate, values[0], values[1], values[2], values[3]); err != nil {
		return err
	}
	if _, err := out.Seek(oldPos, io.SeekStart); err != nil {
		return err
	}

	p.filled = true
	return nil
}

// ContentsPlaceholder reserves space for the hex-encoded CMS signature in
// the /Contents entry: '<', Reserved ASCII zeros, '>'. The recorded offsets
// span the whole literal including the angle brackets.
type ContentsPlaceholder struct {
	// Reserved is the payload size in hex characters.
	Reserved int

	start    int64
	recorded bool
}

func NewContentsPlaceholder(bytesReserved int) *ContentsPlaceholder {
	if bytesReserved <= 0 {
		bytesReserved = DefaultReservation
	}
	return &ContentsPlaceholder{Reserved: bytesReserved}
}

func (p *ContentsPlaceholder) serializeInto(buf *bytes.Buffer) {
	p.start = int64(buf.Len())
	buf.WriteByte('<')
	buf.Write(bytes.Repeat([]byte("0"), p.Reserved))
	buf.WriteByte('>')
}

func (p *ContentsPlaceholder) bind(objectStart int64) {
	p.start += objectStart
	p.recorded = true
}

// Offsets returns the stream positions of the '<' and of the byte just past
// the '>'.
func (p *ContentsPlaceholder) Offsets() (start, end int64, err error) {
	if !p.recorded {
		return 0, 0, fmt.Errorf("no contents offsets available")
	}
	return p.start, p.start + int64(p.Reserved) + 2, nil
}
