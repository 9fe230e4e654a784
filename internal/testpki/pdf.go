package testpki

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// BytesReader implements io.ReaderAt over an in-memory document.
type BytesReader struct {
	Data []byte
}

func NewBytesReader(data []byte) *BytesReader {
	return &BytesReader{Data: data}
}

func (r *BytesReader) ReadAt(p []byte, off int64) (n int, err error) {
	if off >= int64(len(r.Data)) {
		return 0, io.EOF
	}
	n = copy(p, r.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

type fieldDef struct {
	Name string
	FT   string
}

// MinimalPDF builds a single-page document with a classic cross-reference
// table and no form.
func MinimalPDF() []byte {
	return buildPDF(nil)
}

// PDFWithSigFields builds a single-page document carrying one empty
// signature field per name.
func PDFWithSigFields(names ...string) []byte {
	fields := make([]fieldDef, len(names))
	for i, name := range names {
		fields[i] = fieldDef{Name: name, FT: "Sig"}
	}
	return buildPDF(fields)
}

// PDFWithTextField builds a single-page document carrying one text form
// field.
func PDFWithTextField(name string) []byte {
	return buildPDF([]fieldDef{{Name: name, FT: "Tx"}})
}

// buildPDF emits objects sequentially and computes the cross-reference
// offsets from the actual byte positions, so the result is valid by
// construction.
func buildPDF(fields []fieldDef) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int64, 0, 3+len(fields))

	object := func(id int, body string) {
		offsets = append(offsets, int64(buf.Len()))
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}

	fieldRefs := make([]string, len(fields))
	for i := range fields {
		fieldRefs[i] = fmt.Sprintf("%d 0 R", 4+i)
	}

	catalog := "<< /Type /Catalog /Pages 2 0 R >>"
	if len(fields) > 0 {
		catalog = fmt.Sprintf("<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [%s] /SigFlags 1 >> >>",
			strings.Join(fieldRefs, " "))
	}
	object(1, catalog)
	object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")

	page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>"
	if len(fields) > 0 {
		page = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> /Annots [%s] >>",
			strings.Join(fieldRefs, " "))
	}
	object(3, page)

	for i, field := range fields {
		object(4+i, fmt.Sprintf(
			"<< /FT /%s /T (%s) /Type /Annot /Subtype /Widget /F 4 /P 3 0 R /Rect [0 0 0 0] >>",
			field.FT, field.Name))
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefStart)

	return buf.Bytes()
}
