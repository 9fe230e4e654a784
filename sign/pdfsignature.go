package sign

import (
	"bytes"
	"crypto"
	"fmt"
)

func digestMethodName(h crypto.Hash) string {
	switch h {
	case crypto.SHA1:
		return "SHA1"
	case crypto.SHA384:
		return "SHA384"
	case crypto.SHA512:
		return "SHA512"
	default:
		return "SHA256"
	}
}

// createSignatureObject serializes the signature dictionary with both
// placeholders in place. The returned placeholders hold offsets relative to
// the object body; the caller binds them once the body's stream offset is
// known.
func (context *SignContext) createSignatureObject() ([]byte, *ByteRangePlaceholder, *ContentsPlaceholder) {
	meta := context.SignData.Metadata

	var buffer bytes.Buffer

	buffer.WriteString("<<\n")
	buffer.WriteString(" /Type /Sig\n")
	buffer.WriteString(" /Filter /Adobe.PPKLite\n")
	buffer.WriteString(" /SubFilter /adbe.pkcs7.detached\n")

	buffer.WriteString(context.createPropBuild())

	byteRange := &ByteRangePlaceholder{}
	buffer.WriteString(" /ByteRange ")
	byteRange.serializeInto(&buffer)
	buffer.WriteString("\n")

	contents := NewContentsPlaceholder(context.signatureMaxLength)
	buffer.WriteString(" /Contents ")
	contents.serializeInto(&buffer)
	buffer.WriteString("\n")

	if meta.Certify {
		// One signature reference dictionary carrying the DocMDP
		// transform (ISO 32000-1, Tables 252-254).
		buffer.WriteString(" /Reference [\n")
		buffer.WriteString("  << /Type /SigRef\n")
		buffer.WriteString("   /TransformMethod /DocMDP\n")
		buffer.WriteString("   /DigestMethod /" + digestMethodName(meta.MDAlgorithm) + "\n")
		buffer.WriteString("   /TransformParams <<\n")
		buffer.WriteString("    /Type /TransformParams\n")
		buffer.WriteString("    /V /1.2\n")
		fmt.Fprintf(&buffer, "    /P %d\n", meta.DocMDPPerm)
		buffer.WriteString("   >>\n")
		buffer.WriteString("  >>\n")
		buffer.WriteString(" ]\n")
	}

	if context.displayName != "" {
		buffer.WriteString(" /Name " + pdfString(context.displayName) + "\n")
	}
	if meta.Location != "" {
		buffer.WriteString(" /Location " + pdfString(meta.Location) + "\n")
	}
	if meta.Reason != "" {
		buffer.WriteString(" /Reason " + pdfString(meta.Reason) + "\n")
	}
	if meta.ContactInfo != "" {
		buffer.WriteString(" /ContactInfo " + pdfString(meta.ContactInfo) + "\n")
	}

	// The signing time. Unverified computer time, but verifiers expect it
	// when no timestamp token proves a better one.
	buffer.WriteString(" /M " + pdfString(pdfDateTime(context.signingTime)) + "\n")

	buffer.WriteString(">>\n")

	return buffer.Bytes(), byteRange, contents
}

// addSignatureObject writes the signature dictionary into the incremental
// update and binds both placeholders to their stream offsets.
func (context *SignContext) addSignatureObject() error {
	body, byteRange, contents := context.createSignatureObject()

	id, bodyOffset, err := context.addObject(body)
	if err != nil {
		return fmt.Errorf("add signature object: %w", err)
	}

	byteRange.bind(bodyOffset)
	contents.bind(bodyOffset)

	context.signatureRef = id
	context.byteRange = byteRange
	context.contents = contents
	return nil
}

func (context *SignContext) createPropBuild() string {
	var buffer bytes.Buffer

	// Prop_Build records the signature handler; cf. the Adobe PDF
	// Signature Build Dictionary Specification.
	buffer.WriteString(" /Prop_Build <<\n")
	buffer.WriteString("   /App << /Name /PDFSeal >>\n")
	buffer.WriteString(" >>\n")

	return buffer.String()
}
