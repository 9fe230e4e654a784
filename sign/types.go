package sign

import (
	"crypto"
	"crypto/x509"
	"io"
	"time"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"

	"github.com/pdfseal/pdfseal/revocation"
)

//go:generate stringer -type=DocMDPPerm
type DocMDPPerm uint

// Access permissions granted by a certification signature, cf. the DocMDP
// transform parameters dictionary (ISO 32000-1, Table 254).
const (
	// NoChanges invalidates the signature on any change to the document.
	NoChanges DocMDPPerm = iota + 1
	// FillForms permits form filling and signing.
	FillForms
	// Annotate permits form filling, signing and annotation management.
	Annotate
)

// FieldSpec places a visible signature field on a page.
type FieldSpec struct {
	Page uint32
	// Box is [llx lly urx ury] in page space.
	Box [4]float64
}

// SignatureMetadata describes the signature to produce.
type SignatureMetadata struct {
	// FieldName selects the AcroForm signature field to populate. When
	// empty, ExistingFieldsOnly must be set on SignData and the document
	// must contain exactly one empty signature field.
	FieldName string

	// MDAlgorithm is the digest algorithm, one of crypto.SHA1, SHA256,
	// SHA384 or SHA512. Defaults to SHA512.
	MDAlgorithm crypto.Hash

	// Name identifies the signer in the signature dictionary. When empty
	// it is derived from the signing certificate subject.
	Name        string
	Location    string
	Reason      string
	ContactInfo string

	// Certify installs a DocMDP certification entry with DocMDPPerm.
	Certify    bool
	DocMDPPerm DocMDPPerm

	// Appearance, when set, makes a newly created field visible at the
	// given box. Reused fields keep their own rectangle.
	Appearance *FieldSpec

	// BytesReserved fixes the size of the /Contents reservation (in hex
	// characters). When zero the reservation is sized by a dry-run pass.
	BytesReserved int

	// Date is the signing time. Zero means time.Now().
	Date time.Time
}

// EmbedRevocationFunction fetches revocation information for a certificate
// and its issuer into the archival container. The issuer is nil for the
// last chain element.
type EmbedRevocationFunction func(cert, issuer *x509.Certificate, i *revocation.InfoArchival) error

// SignData carries everything a signing call needs.
type SignData struct {
	Metadata SignatureMetadata
	Signer   Signer

	// ExistingFieldsOnly forbids creating a new signature field.
	ExistingFieldsOnly bool

	// RevocationData is embedded in the Adobe revocation-archival signed
	// attribute. RevocationFunction, when set, is invoked per chain link
	// to populate it before signing.
	RevocationData     revocation.InfoArchival
	RevocationFunction EmbedRevocationFunction

	// AppearanceRenderer overrides the built-in text stamp for visible
	// fields. It returns a serialized form XObject for the given rect.
	AppearanceRenderer func(context *SignContext, rect [4]float64) ([]byte, error)
}

type xrefEntry struct {
	ID     uint32
	Offset int64
}

type objectRef struct {
	ID  uint32
	Gen uint16
}

// CatalogData tracks the rewritten document catalog.
type CatalogData struct {
	ObjectId   uint32
	RootString string
}

// SignContext owns one signing operation: it appends a single incremental
// update to the input document and back-patches the signature placeholders.
type SignContext struct {
	InputFile    io.ReadSeeker
	OutputFile   io.Writer
	OutputBuffer *filebuffer.Buffer
	PDFReader    *pdf.Reader
	SignData     SignData
	CatalogData  CatalogData

	// Placeholder handles, bound to absolute offsets after serialization.
	byteRange *ByteRangePlaceholder
	contents  *ContentsPlaceholder

	// Reserved /Contents payload length in hex characters.
	signatureMaxLength int

	signingTime time.Time
	displayName string

	signatureRef uint32
	fieldRef     objectRef
	fieldCreated bool
	fieldRect    [4]float64

	existingFields     []formField
	lastXrefID         uint32
	newXrefEntries     []xrefEntry
	updatedXrefEntries []xrefEntry
	newXrefStart       int64
	byteRangeValues    []int64
}
