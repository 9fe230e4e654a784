package sign

import (
	"fmt"
	"io"
	"strconv"

	"github.com/digitorus/pdf"
)

// nextObjectID allocates the next free object number after the ones the
// input document already uses.
func (context *SignContext) nextObjectID() uint32 {
	if context.lastXrefID == 0 {
		context.lastXrefID = uint32(context.PDFReader.XrefInformation.ItemCount) - 1
	}
	context.lastXrefID++
	return context.lastXrefID
}

// addObject appends a new indirect object to the incremental update and
// registers it in the new cross-reference section. It returns the object
// number and the stream offset of the first byte of the object body, so
// placeholders serialized inside the body can be bound to stream offsets.
func (context *SignContext) addObject(body []byte) (id uint32, bodyOffset int64, err error) {
	id = context.nextObjectID()
	objectStart, bodyOffset, err := context.writeObject(id, body)
	if err != nil {
		return 0, 0, err
	}
	context.newXrefEntries = append(context.newXrefEntries, xrefEntry{ID: id, Offset: objectStart})
	return id, bodyOffset, nil
}

// updateObject rewrites an existing indirect object in the incremental
// update and registers it in the updated cross-reference section.
func (context *SignContext) updateObject(id uint32, body []byte) error {
	objectStart, _, err := context.writeObject(id, body)
	if err != nil {
		return err
	}
	context.updatedXrefEntries = append(context.updatedXrefEntries, xrefEntry{ID: id, Offset: objectStart})
	return nil
}

func (context *SignContext) writeObject(id uint32, body []byte) (objectStart, bodyOffset int64, err error) {
	objectStart, err = context.OutputBuffer.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, err
	}

	header := fmt.Sprintf("%d 0 obj\n", id)
	if _, err := context.OutputBuffer.Write([]byte(header)); err != nil {
		return 0, 0, fmt.Errorf("write object header: %w", err)
	}
	bodyOffset = objectStart + int64(len(header))

	if _, err := context.OutputBuffer.Write(body); err != nil {
		return 0, 0, fmt.Errorf("write object body: %w", err)
	}
	if len(body) > 0 && body[len(body)-1] != '\n' {
		if _, err := context.OutputBuffer.Write([]byte("\n")); err != nil {
			return 0, 0, err
		}
	}
	if _, err := context.OutputBuffer.Write([]byte("endobj\n\n")); err != nil {
		return 0, 0, fmt.Errorf("write object end: %w", err)
	}

	return objectStart, bodyOffset, nil
}

func refString(id uint32, gen uint16) string {
	return strconv.Itoa(int(id)) + " " + strconv.Itoa(int(gen)) + " R"
}

// serializeValue writes value the way it appeared in the source document:
// values resolved from another object become an indirect reference, values
// owned by ownerID are written inline.
func (context *SignContext) serializeValue(w io.Writer, ownerID uint32, value pdf.Value) error {
	if ptr := value.GetPtr(); ptr.GetID() != ownerID {
		_, err := fmt.Fprintf(w, "%d %d R", ptr.GetID(), ptr.GetGen())
		return err
	}

	switch value.Kind() {
	case pdf.String:
		_, err := io.WriteString(w, pdfString(value.RawString()))
		return err
	case pdf.Null:
		_, err := io.WriteString(w, "null")
		return err
	case pdf.Bool:
		repr := "false"
		if value.Bool() {
			repr = "true"
		}
		_, err := io.WriteString(w, repr)
		return err
	case pdf.Integer:
		_, err := fmt.Fprintf(w, "%d", value.Int64())
		return err
	case pdf.Real:
		_, err := fmt.Fprintf(w, "%f", value.Float64())
		return err
	case pdf.Name:
		_, err := fmt.Fprintf(w, "/%s", value.Name())
		return err
	case pdf.Dict:
		if _, err := io.WriteString(w, "<<"); err != nil {
			return err
		}
		for idx, key := range value.Keys() {
			if idx > 0 {
				if _, err := io.WriteString(w, " "); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "/%s ", key); err != nil {
				return err
			}
			if err := context.serializeValue(w, ownerID, value.Key(key)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, ">>")
		return err
	case pdf.Array:
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		for idx := 0; idx < value.Len(); idx++ {
			if idx > 0 {
				if _, err := io.WriteString(w, " "); err != nil {
					return err
				}
			}
			if err := context.serializeValue(w, ownerID, value.Index(idx)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		return err
	case pdf.Stream:
		return fmt.Errorf("stream cannot be serialized as a direct value")
	}

	return fmt.Errorf("unsupported value kind %v", value.Kind())
}
