package sign

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/digitorus/pdf"
)

// Annotation flags, ISO 32000-1 Table 165.
const (
	AnnotationFlagInvisible      = 1 << 0
	AnnotationFlagHidden         = 1 << 1
	AnnotationFlagPrint          = 1 << 2
	AnnotationFlagNoZoom         = 1 << 3
	AnnotationFlagNoRotate       = 1 << 4
	AnnotationFlagNoView         = 1 << 5
	AnnotationFlagReadOnly       = 1 << 6
	AnnotationFlagLocked         = 1 << 7
	AnnotationFlagToggleNoView   = 1 << 8
	AnnotationFlagLockedContents = 1 << 9
)

type formField struct {
	Name   string
	Type   string
	Filled bool
	Ref    objectRef
	Rect   [4]float64

	value pdf.Value
	// topLevel marks direct members of the AcroForm /Fields array; only
	// those reappear in the rewritten catalog.
	topLevel bool
}

func (f formField) isEmptySignature() bool { return f.Type == "Sig" && !f.Filled }

func (f formField) visible() bool {
	return f.Rect[2]-f.Rect[0] != 0 && f.Rect[3]-f.Rect[1] != 0
}

// enumerateFormFields walks the AcroForm field tree. Terminal fields without
// a /T entry are tolerated and skipped.
func (context *SignContext) enumerateFormFields() error {
	acroForm := context.PDFReader.Trailer().Key("Root").Key("AcroForm")
	if acroForm.IsNull() {
		return nil
	}

	fields := acroForm.Key("Fields")
	if fields.IsNull() {
		return nil
	}

	for i := 0; i < fields.Len(); i++ {
		entry := fields.Index(i)
		ptr := entry.GetPtr()
		if ptr.GetID() == 0 {
			return fmt.Errorf("form field entries must be indirect objects")
		}
		if err := context.collectFields(entry, true); err != nil {
			return err
		}
	}

	return nil
}

func (context *SignContext) collectFields(value pdf.Value, topLevel bool) error {
	name := value.Key("T")
	if name.IsNull() {
		return nil
	}

	ptr := value.GetPtr()
	field := formField{
		Name:     name.Text(),
		Type:     value.Key("FT").Name(),
		Filled:   !value.Key("V").IsNull(),
		Ref:      objectRef{ID: ptr.GetID(), Gen: uint16(ptr.GetGen())},
		value:    value,
		topLevel: topLevel,
	}
	if rect := value.Key("Rect"); rect.Kind() == pdf.Array && rect.Len() == 4 {
		for i := 0; i < 4; i++ {
			field.Rect[i] = rect.Index(i).Float64()
		}
	}
	context.existingFields = append(context.existingFields, field)

	kids := value.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		if err := context.collectFields(kids.Index(i), false); err != nil {
			return err
		}
	}

	return nil
}

// FieldFilter narrows a signature-field enumeration by filled status.
type FieldFilter int

const (
	AnyField FieldFilter = iota
	FilledFields
	EmptyFields
)

// SignatureField describes one signature field of a document.
type SignatureField struct {
	Name   string
	Filled bool
}

// EnumerateSignatureFields lists the signature fields of the document
// behind rdr, optionally narrowed to filled or empty ones.
func EnumerateSignatureFields(rdr *pdf.Reader, filter FieldFilter) ([]SignatureField, error) {
	context := &SignContext{PDFReader: rdr}
	if err := context.enumerateFormFields(); err != nil {
		return nil, err
	}

	var result []SignatureField
	for _, field := range context.existingFields {
		if field.Type != "Sig" {
			continue
		}
		if filter == FilledFields && !field.Filled || filter == EmptyFields && field.Filled {
			continue
		}
		result = append(result, SignatureField{Name: field.Name, Filled: field.Filled})
	}
	return result, nil
}

func (context *SignContext) emptySignatureFields() []formField {
	var empty []formField
	for _, field := range context.existingFields {
		if field.isEmptySignature() {
			empty = append(empty, field)
		}
	}
	return empty
}

// prepareSignatureField resolves the field the signature lands in: the
// unique empty signature field when no name is given, or the named field
// (reused when empty, created otherwise).
func (context *SignContext) prepareSignatureField() error {
	meta := context.SignData.Metadata

	if meta.FieldName == "" {
		if !context.SignData.ExistingFieldsOnly {
			return fmt.Errorf("a field name is required unless signing existing fields only")
		}
		empty := context.emptySignatureFields()
		switch len(empty) {
		case 0:
			return fmt.Errorf("%w: document contains none", ErrNoEmptyField)
		case 1:
			return context.reuseSignatureField(empty[0])
		default:
			names := make([]string, len(empty))
			for i, field := range empty {
				names[i] = field.Name
			}
			return fmt.Errorf("%w: specify one of %s", ErrAmbiguousField, strings.Join(names, ", "))
		}
	}

	for _, field := range context.existingFields {
		if field.Name != meta.FieldName {
			continue
		}
		if field.Type != "Sig" {
			return fmt.Errorf("%w: field %q exists but is not a signature field", ErrFieldConflict, meta.FieldName)
		}
		if field.Filled {
			return fmt.Errorf("%w: field %q appears to be filled already", ErrFieldConflict, meta.FieldName)
		}
		return context.reuseSignatureField(field)
	}

	if context.SignData.ExistingFieldsOnly {
		return fmt.Errorf("%w: no field named %q", ErrNoEmptyField, meta.FieldName)
	}

	return context.createSignatureField(meta.FieldName)
}

// reuseSignatureField rewrites an existing empty field: wires /V to the new
// signature dictionary, sets the Locked annotation bit, refreshes the
// appearance when the widget is visible and drops any stale appearance
// state.
func (context *SignContext) reuseSignatureField(field formField) error {
	var appearanceRef uint32
	if field.visible() {
		appearance, err := context.createAppearance(field.Rect)
		if err != nil {
			return fmt.Errorf("render appearance for field %q: %w", field.Name, err)
		}
		appearanceRef, _, err = context.addObject(appearance)
		if err != nil {
			return fmt.Errorf("add appearance object: %w", err)
		}
	}

	flags := int64(AnnotationFlagPrint)

	var buffer bytes.Buffer
	buffer.WriteString("<<\n")
	for _, key := range field.value.Keys() {
		switch key {
		case "V", "AS":
			// replaced below / meaningless once the value changes
			continue
		case "AP":
			if field.visible() {
				continue
			}
		case "F":
			flags = field.value.Key("F").Int64()
			continue
		}
		fmt.Fprintf(&buffer, "  /%s ", key)
		if err := context.serializeValue(&buffer, field.Ref.ID, field.value.Key(key)); err != nil {
			return fmt.Errorf("copy field entry /%s: %w", key, err)
		}
		buffer.WriteString("\n")
	}

	fmt.Fprintf(&buffer, "  /F %d\n", flags|AnnotationFlagLocked)
	fmt.Fprintf(&buffer, "  /V %s\n", refString(context.signatureRef, 0))
	if field.visible() {
		fmt.Fprintf(&buffer, "  /AP << /N %s >>\n", refString(appearanceRef, 0))
	}
	buffer.WriteString(">>\n")

	if err := context.updateObject(field.Ref.ID, buffer.Bytes()); err != nil {
		return fmt.Errorf("update field %q: %w", field.Name, err)
	}

	context.fieldRef = field.Ref
	context.fieldCreated = false
	context.fieldRect = field.Rect
	return nil
}

// createSignatureField adds a fresh signature widget: invisible with a zero
// rectangle, or visible at the requested box with a rendered appearance and
// a page /Annots registration.
func (context *SignContext) createSignatureField(name string) error {
	spec := context.SignData.Metadata.Appearance
	visible := spec != nil && spec.Box[2]-spec.Box[0] != 0 && spec.Box[3]-spec.Box[1] != 0

	pageNumber := uint32(1)
	if spec != nil && spec.Page > 0 {
		pageNumber = spec.Page
	}
	page, err := findPageByNumber(context.PDFReader.Trailer().Key("Root").Key("Pages"), pageNumber)
	if err != nil {
		return err
	}
	pagePtr := page.GetPtr()

	rect := [4]float64{}
	var appearanceRef uint32
	if visible {
		rect = spec.Box
		appearance, err := context.createAppearance(rect)
		if err != nil {
			return fmt.Errorf("render appearance for field %q: %w", name, err)
		}
		appearanceRef, _, err = context.addObject(appearance)
		if err != nil {
			return fmt.Errorf("add appearance object: %w", err)
		}
	}

	var buffer bytes.Buffer
	buffer.WriteString("<<\n")
	buffer.WriteString("  /FT /Sig\n")
	buffer.WriteString("  /T " + pdfString(name) + "\n")
	buffer.WriteString("  /Type /Annot\n")
	buffer.WriteString("  /Subtype /Widget\n")
	fmt.Fprintf(&buffer, "  /F %d\n", AnnotationFlagPrint|AnnotationFlagLocked)
	fmt.Fprintf(&buffer, "  /P %d %d R\n", pagePtr.GetID(), pagePtr.GetGen())
	fmt.Fprintf(&buffer, "  /Rect [%f %f %f %f]\n", rect[0], rect[1], rect[2], rect[3])
	fmt.Fprintf(&buffer, "  /V %s\n", refString(context.signatureRef, 0))
	if visible {
		fmt.Fprintf(&buffer, "  /AP << /N %s >>\n", refString(appearanceRef, 0))
	}
	buffer.WriteString(">>\n")

	id, _, err := context.addObject(buffer.Bytes())
	if err != nil {
		return fmt.Errorf("add field object: %w", err)
	}

	if visible {
		if err := context.registerAnnotation(page, id); err != nil {
			return fmt.Errorf("register widget annotation: %w", err)
		}
	}

	context.fieldRef = objectRef{ID: id}
	context.fieldCreated = true
	context.fieldRect = rect
	return nil
}

// registerAnnotation adds the widget to the page's /Annots in the
// incremental update. An indirect annotation array is rewritten on its own;
// otherwise the whole page object is.
func (context *SignContext) registerAnnotation(page pdf.Value, annot uint32) error {
	pageID := getObjID(page)
	annots := page.Key("Annots")

	if !annots.IsNull() {
		if ptr := annots.GetPtr(); ptr.GetID() != pageID {
			// The array is its own object; extend it in place.
			var buffer bytes.Buffer
			buffer.WriteString("[")
			for i := 0; i < annots.Len(); i++ {
				if i > 0 {
					buffer.WriteString(" ")
				}
				if err := context.serializeValue(&buffer, ptr.GetID(), annots.Index(i)); err != nil {
					return err
				}
			}
			if annots.Len() > 0 {
				buffer.WriteString(" ")
			}
			buffer.WriteString(refString(annot, 0))
			buffer.WriteString("]\n")
			return context.updateObject(ptr.GetID(), buffer.Bytes())
		}
	}

	body, err := context.createIncPageUpdate(page, annot)
	if err != nil {
		return err
	}
	return context.updateObject(pageID, body)
}

// createIncPageUpdate re-serializes a page object with the new annotation
// appended to its direct /Annots array.
func (context *SignContext) createIncPageUpdate(page pdf.Value, annot uint32) ([]byte, error) {
	pageID := getObjID(page)

	var buffer bytes.Buffer
	buffer.WriteString("<<\n")

	hasAnnots := false
	for _, key := range page.Keys() {
		if key == "Annots" {
			hasAnnots = true
			annots := page.Key(key)
			buffer.WriteString("  /Annots [")
			for i := 0; i < annots.Len(); i++ {
				if err := context.serializeValue(&buffer, pageID, annots.Index(i)); err != nil {
					return nil, err
				}
				buffer.WriteString(" ")
			}
			buffer.WriteString(refString(annot, 0))
			buffer.WriteString("]\n")
			continue
		}
		fmt.Fprintf(&buffer, "  /%s ", key)
		if err := context.serializeValue(&buffer, pageID, page.Key(key)); err != nil {
			return nil, fmt.Errorf("copy page entry /%s: %w", key, err)
		}
		buffer.WriteString("\n")
	}

	if !hasAnnots {
		fmt.Fprintf(&buffer, "  /Annots [%s]\n", refString(annot, 0))
	}

	buffer.WriteString(">>\n")
	return buffer.Bytes(), nil
}

// findPageByNumber resolves the 1-based pageNumber in the page tree.
func findPageByNumber(pages pdf.Value, pageNumber uint32) (pdf.Value, error) {
	page, remaining, err := findPageByNumberRec(pages, pageNumber)
	if err != nil {
		return pdf.Value{}, fmt.Errorf("page number %d not found", pageNumber)
	}
	if remaining != 0 {
		return pdf.Value{}, fmt.Errorf("page number %d not found", pageNumber)
	}
	return page, nil
}

func findPageByNumberRec(pages pdf.Value, pageNumber uint32) (pdf.Value, uint32, error) {
	switch pages.Key("Type").Name() {
	case "Pages":
		kids := pages.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			page, remaining, err := findPageByNumberRec(kids.Index(i), pageNumber)
			if err == nil && remaining == 0 {
				return page, 0, nil
			}
			pageNumber = remaining
		}
		return pdf.Value{}, pageNumber, fmt.Errorf("page number %d not found", pageNumber)
	case "Page":
		if pageNumber == 1 {
			return pages, 0, nil
		}
		return pdf.Value{}, pageNumber - 1, nil
	}
	return pdf.Value{}, pageNumber, fmt.Errorf("page number %d not found", pageNumber)
}
