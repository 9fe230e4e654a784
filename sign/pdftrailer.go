package sign

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
)

// writeTrailer finishes the incremental update: a fresh trailer dictionary
// (table flavor only; a cross-reference stream carries its own), the
// startxref pointer and the end-of-file marker.
func (context *SignContext) writeTrailer() error {
	if context.PDFReader.XrefInformation.Type == "table" {
		trailer := context.PDFReader.Trailer()

		var buffer bytes.Buffer
		buffer.WriteString("trailer\n")
		buffer.WriteString("<<\n")
		fmt.Fprintf(&buffer, "  /Size %d\n", context.lastXrefID+1)
		fmt.Fprintf(&buffer, "  /Root %s\n", refString(context.CatalogData.ObjectId, 0))
		fmt.Fprintf(&buffer, "  /Prev %d\n", context.PDFReader.XrefInformation.StartPos)

		if info := trailer.Key("Info"); !info.IsNull() {
			ptr := info.GetPtr()
			if ptr.GetID() != 0 {
				fmt.Fprintf(&buffer, "  /Info %d %d R\n", ptr.GetID(), ptr.GetGen())
			}
		}
		if id := trailer.Key("ID"); !id.IsNull() && id.Len() == 2 {
			fmt.Fprintf(&buffer, "  /ID [<%s><%s>]\n",
				hex.EncodeToString([]byte(id.Index(0).RawString())),
				hex.EncodeToString([]byte(id.Index(1).RawString())))
		}

		buffer.WriteString(">>\n")
		if _, err := context.OutputBuffer.Write(buffer.Bytes()); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(context.OutputBuffer, "startxref\n%d\n", context.newXrefStart); err != nil {
		return err
	}
	if _, err := io.WriteString(context.OutputBuffer, "%%EOF\n"); err != nil {
		return err
	}

	return nil
}
