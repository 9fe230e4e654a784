package sign

import (
	"bytes"
	"fmt"
	"strconv"
)

// createCatalog rewrites the document catalog for the incremental update:
// the AcroForm is rebuilt with every pre-existing top-level field plus the
// new one, a certification adds /Perms/DocMDP, and everything else is
// carried over untouched.
func (context *SignContext) createCatalog() ([]byte, error) {
	root := context.PDFReader.Trailer().Key("Root")
	rootPtr := root.GetPtr()
	context.CatalogData.RootString = refString(rootPtr.GetID(), rootPtr.GetGen())

	var buffer bytes.Buffer
	buffer.WriteString("<<\n")
	buffer.WriteString("  /Type /Catalog\n")

	overwritten := map[string]bool{"Type": true, "AcroForm": true}

	buffer.WriteString("  /AcroForm <<\n")
	if err := context.writeAcroForm(&buffer); err != nil {
		return nil, err
	}
	buffer.WriteString("  >>\n")

	if context.SignData.Metadata.Certify {
		overwritten["Perms"] = true
		buffer.WriteString("  /Perms <<\n")
		perms := root.Key("Perms")
		for _, key := range perms.Keys() {
			if key == "DocMDP" {
				continue
			}
			fmt.Fprintf(&buffer, "    /%s ", key)
			if err := context.serializeValue(&buffer, rootPtr.GetID(), perms.Key(key)); err != nil {
				return nil, fmt.Errorf("copy perms entry /%s: %w", key, err)
			}
			buffer.WriteString("\n")
		}
		fmt.Fprintf(&buffer, "    /DocMDP %s\n", refString(context.signatureRef, 0))
		buffer.WriteString("  >>\n")
	}

	for _, key := range root.Keys() {
		if overwritten[key] {
			continue
		}
		fmt.Fprintf(&buffer, "  /%s ", key)
		if err := context.serializeValue(&buffer, rootPtr.GetID(), root.Key(key)); err != nil {
			return nil, fmt.Errorf("copy catalog entry /%s: %w", key, err)
		}
		buffer.WriteString("\n")
	}

	buffer.WriteString(">>\n")
	return buffer.Bytes(), nil
}

func (context *SignContext) writeAcroForm(buffer *bytes.Buffer) error {
	root := context.PDFReader.Trailer().Key("Root")
	acroForm := root.Key("AcroForm")

	acroFormOwner := getObjID(root)
	if !acroForm.IsNull() {
		acroFormOwner = getObjID(acroForm)
	}

	buffer.WriteString("    /Fields [")
	first := true
	for _, field := range context.existingFields {
		if !field.topLevel {
			continue
		}
		if !first {
			buffer.WriteString(" ")
		}
		buffer.WriteString(refString(field.Ref.ID, field.Ref.Gen))
		first = false
	}
	if context.fieldCreated {
		if !first {
			buffer.WriteString(" ")
		}
		buffer.WriteString(refString(context.fieldRef.ID, context.fieldRef.Gen))
	}
	buffer.WriteString("]\n")

	// SigFlags (Table 225): bit 1 SignaturesExist, bit 2 AppendOnly. An
	// existing value is kept with SignaturesExist added; new forms get both
	// bits since the document now holds a signature that a full rewrite
	// would invalidate.
	sigFlags := int64(3)
	if existing := acroForm.Key("SigFlags"); !existing.IsNull() {
		sigFlags = existing.Int64() | 1
	}
	buffer.WriteString("    /SigFlags " + strconv.FormatInt(sigFlags, 10) + "\n")

	for _, key := range acroForm.Keys() {
		switch key {
		case "Fields", "SigFlags":
			continue
		}
		fmt.Fprintf(buffer, "    /%s ", key)
		if err := context.serializeValue(buffer, acroFormOwner, acroForm.Key(key)); err != nil {
			return fmt.Errorf("copy form entry /%s: %w", key, err)
		}
		buffer.WriteString("\n")
	}

	return nil
}

// addCatalog writes the rewritten catalog into the incremental update.
func (context *SignContext) addCatalog() error {
	catalog, err := context.createCatalog()
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}

	context.CatalogData.ObjectId, _, err = context.addObject(catalog)
	if err != nil {
		return fmt.Errorf("add catalog object: %w", err)
	}
	return nil
}
