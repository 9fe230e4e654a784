package sign

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
)

const (
	xrefStreamColumns   = 6
	xrefStreamPredictor = 12
)

// writeXref emits the incremental cross-reference section in the same
// flavor the input document uses.
func (context *SignContext) writeXref() error {
	start, err := context.OutputBuffer.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	context.newXrefStart = start

	switch context.PDFReader.XrefInformation.Type {
	case "table":
		return context.writeIncrXrefTable()
	case "stream":
		return context.writeXrefStream()
	default:
		return fmt.Errorf("unknown xref type: %s", context.PDFReader.XrefInformation.Type)
	}
}

// writeIncrXrefTable writes a classic cross-reference table: one subsection
// per updated object, one contiguous subsection for the new objects.
func (context *SignContext) writeIncrXrefTable() error {
	if _, err := context.OutputBuffer.Write([]byte("xref\n")); err != nil {
		return fmt.Errorf("write incremental xref header: %w", err)
	}

	for _, entry := range context.updatedXrefEntries {
		if _, err := fmt.Fprintf(context.OutputBuffer, "%d 1\n", entry.ID); err != nil {
			return fmt.Errorf("write updated xref subsection: %w", err)
		}
		if _, err := fmt.Fprintf(context.OutputBuffer, "%010d 00000 n\r\n", entry.Offset); err != nil {
			return fmt.Errorf("write updated xref entry: %w", err)
		}
	}

	if len(context.newXrefEntries) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(context.OutputBuffer, "%d %d\n", context.newXrefEntries[0].ID, len(context.newXrefEntries)); err != nil {
		return fmt.Errorf("write xref subsection header: %w", err)
	}
	for _, entry := range context.newXrefEntries {
		if _, err := fmt.Fprintf(context.OutputBuffer, "%010d 00000 n\r\n", entry.Offset); err != nil {
			return fmt.Errorf("write new xref entry: %w", err)
		}
	}

	return nil
}

// writeXrefStream writes a cross-reference stream object covering the
// updated entries, the new objects and the stream object itself.
func (context *SignContext) writeXrefStream() error {
	streamID := context.nextObjectID()

	entries := make([]xrefEntry, 0, len(context.updatedXrefEntries)+len(context.newXrefEntries)+1)
	entries = append(entries, context.updatedXrefEntries...)
	entries = append(entries, context.newXrefEntries...)
	entries = append(entries, xrefEntry{ID: streamID, Offset: context.newXrefStart})
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	var data bytes.Buffer
	for _, entry := range entries {
		writeXrefStreamLine(&data, 1, entry.Offset, 0)
	}

	streamBytes, err := encodePNGUpBytes(xrefStreamColumns, data.Bytes())
	if err != nil {
		return fmt.Errorf("encode xref stream: %w", err)
	}

	var index bytes.Buffer
	for i := 0; i < len(entries); {
		j := i
		for j+1 < len(entries) && entries[j+1].ID == entries[j].ID+1 {
			j++
		}
		fmt.Fprintf(&index, " %d %d", entries[i].ID, j-i+1)
		i = j + 1
	}

	var header bytes.Buffer
	fmt.Fprintf(&header, "%d 0 obj\n", streamID)
	header.WriteString("<< /Type /XRef\n")
	fmt.Fprintf(&header, "  /Length %d\n", len(streamBytes))
	header.WriteString("  /Filter /FlateDecode\n")
	fmt.Fprintf(&header, "  /DecodeParms << /Columns %d /Predictor %d >>\n", xrefStreamColumns, xrefStreamPredictor)
	header.WriteString("  /W [ 1 4 1 ]\n")
	fmt.Fprintf(&header, "  /Index [%s ]\n", index.String())
	fmt.Fprintf(&header, "  /Prev %d\n", context.PDFReader.XrefInformation.StartPos)
	fmt.Fprintf(&header, "  /Size %d\n", context.lastXrefID+1)
	fmt.Fprintf(&header, "  /Root %s\n", refString(context.CatalogData.ObjectId, 0))
	if id := context.PDFReader.Trailer().Key("ID"); !id.IsNull() && id.Len() == 2 {
		fmt.Fprintf(&header, "  /ID [<%s><%s>]\n",
			hex.EncodeToString([]byte(id.Index(0).RawString())),
			hex.EncodeToString([]byte(id.Index(1).RawString())))
	}
	header.WriteString(">>\n")

	if _, err := context.OutputBuffer.Write(header.Bytes()); err != nil {
		return err
	}
	if _, err := io.WriteString(context.OutputBuffer, "stream\n"); err != nil {
		return err
	}
	if _, err := context.OutputBuffer.Write(streamBytes); err != nil {
		return err
	}
	if _, err := io.WriteString(context.OutputBuffer, "\nendstream\nendobj\n"); err != nil {
		return err
	}

	return nil
}

// writeXrefStreamLine writes one W=[1 4 1] entry.
func writeXrefStreamLine(b *bytes.Buffer, xreftype byte, offset int64, gen byte) {
	b.WriteByte(xreftype)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(offset))
	b.Write(buf[4:8])
	b.WriteByte(gen)
}

// encodePNGUpBytes applies the PNG UP predictor row filter and deflates the
// result.
func encodePNGUpBytes(columns int, data []byte) ([]byte, error) {
	if len(data)%columns != 0 {
		return nil, errors.New("invalid row/column length")
	}
	rowCount := len(data) / columns

	prevRowData := make([]byte, columns)
	tmpRowData := make([]byte, columns)

	filtered := bytes.NewBuffer(nil)
	for i := 0; i < rowCount; i++ {
		rowData := data[columns*i : columns*(i+1)]
		for j := 0; j < columns; j++ {
			tmpRowData[j] = rowData[j] - prevRowData[j]
		}
		copy(prevRowData, rowData)

		filtered.WriteByte(2)
		filtered.Write(tmpRowData)
	}

	var b bytes.Buffer
	w := zlib.NewWriter(&b)
	if _, err := w.Write(filtered.Bytes()); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}
