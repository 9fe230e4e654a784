package sign

import (
	"crypto"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
)

// tsaReservationHeadroom pads the dry-run sizing when a timestamper is
// configured: the real token can be a few bytes longer than the sizing
// token (serial number, time encoding).
const tsaReservationHeadroom = 64

// SignFile signs the PDF at input and writes the signed document to output.
func SignFile(input, output string, signData SignData) error {
	inputFile, err := os.Open(input)
	if err != nil {
		return err
	}
	defer func() {
		_ = inputFile.Close()
	}()

	outputFile, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		cerr := outputFile.Close()
		if err == nil {
			err = cerr
		}
	}()

	finfo, err := inputFile.Stat()
	if err != nil {
		return err
	}

	rdr, err := pdf.NewReader(inputFile, finfo.Size())
	if err != nil {
		return err
	}

	return Sign(inputFile, outputFile, rdr, signData)
}

// Sign appends one incremental update carrying the signature to the
// document behind rdr and writes the result to output. Nothing is written
// on failure.
func Sign(input io.ReadSeeker, output io.Writer, rdr *pdf.Reader, signData SignData) error {
	context := &SignContext{
		InputFile:  input,
		OutputFile: output,
		PDFReader:  rdr,
		SignData:   signData,
	}
	return context.SignPDF()
}

// SignPDF performs the signature operation.
func (context *SignContext) SignPDF() error {
	if context.SignData.Signer == nil {
		return fmt.Errorf("a signer is required")
	}
	if cert := context.SignData.Signer.SigningCert(); cert == nil {
		return fmt.Errorf("signer provides no certificate")
	}
	context.applyDefaults()

	// Revocation material is part of the signed attributes, so it has to
	// exist before the dry run that sizes the reservation.
	if err := context.fetchRevocationData(); err != nil {
		return err
	}

	if err := context.calculateSignatureSize(); err != nil {
		return err
	}

	if err := context.enumerateFormFields(); err != nil {
		return err
	}

	if err := context.copyInputToOutput(); err != nil {
		return err
	}

	if err := context.addSignatureObject(); err != nil {
		return err
	}

	if err := context.prepareSignatureField(); err != nil {
		return err
	}

	if err := context.addCatalog(); err != nil {
		return err
	}

	if err := context.writeXref(); err != nil {
		return fmt.Errorf("write xref: %w", err)
	}

	if err := context.writeTrailer(); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}

	if err := context.updateByteRange(); err != nil {
		return err
	}

	if err := context.replaceSignature(); err != nil {
		return err
	}

	if _, err := context.OutputBuffer.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := context.OutputFile.Write(context.OutputBuffer.Buff.Bytes()); err != nil {
		return err
	}

	return nil
}

func (context *SignContext) applyDefaults() {
	meta := &context.SignData.Metadata

	switch meta.MDAlgorithm {
	case crypto.SHA1, crypto.SHA256, crypto.SHA384, crypto.SHA512:
	default:
		meta.MDAlgorithm = crypto.SHA512
	}
	if meta.DocMDPPerm == 0 {
		meta.DocMDPPerm = FillForms
	}

	context.signingTime = meta.Date
	if context.signingTime.IsZero() {
		context.signingTime = time.Now()
	}

	context.displayName = meta.Name
	if context.displayName == "" {
		context.displayName = subjectDisplayName(context.SignData.Signer.SigningCert())
	}
}

// calculateSignatureSize determines the /Contents reservation: an explicit
// BytesReserved wins; otherwise a dry-run CMS structure is built and
// measured. The dry run exercises a configured timestamper for real.
func (context *SignContext) calculateSignatureSize() error {
	if context.SignData.Metadata.BytesReserved > 0 {
		context.signatureMaxLength = context.SignData.Metadata.BytesReserved
		return nil
	}

	testSignature, err := context.createSignature(nil, true)
	if err != nil {
		return fmt.Errorf("size signature reservation: %w", err)
	}

	reserved := hex.EncodedLen(len(testSignature))
	if context.SignData.Signer.Timestamper() != nil {
		reserved += tsaReservationHeadroom
	}
	context.signatureMaxLength = reserved
	return nil
}

func (context *SignContext) copyInputToOutput() error {
	context.OutputBuffer = filebuffer.New([]byte{})

	if _, err := context.InputFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.Copy(context.OutputBuffer, context.InputFile); err != nil {
		return err
	}
	// The update needs a fresh line after the previous %%EOF.
	if _, err := context.OutputBuffer.Write([]byte("\n")); err != nil {
		return err
	}
	return nil
}

// updateByteRange fills the /ByteRange placeholder now that the final size
// of the document is known.
func (context *SignContext) updateByteRange() error {
	eof := int64(context.OutputBuffer.Buff.Len())

	sigStart, sigEnd, err := context.contents.Offsets()
	if err != nil {
		return err
	}

	if err := context.byteRange.Fill(context.OutputBuffer, sigStart, sigEnd, eof); err != nil {
		return fmt.Errorf("fill byte range: %w", err)
	}

	context.byteRangeValues = []int64{0, sigStart, sigEnd, eof - sigEnd}
	return nil
}

// replaceSignature computes the digest over both byte ranges, builds the
// CMS structure and writes its hex encoding over the reserved zeros.
func (context *SignContext) replaceSignature() error {
	fileContent := context.OutputBuffer.Buff.Bytes()

	br := context.byteRangeValues
	signContent := make([]byte, 0, br[1]+br[3])
	signContent = append(signContent, fileContent[br[0]:br[0]+br[1]]...)
	signContent = append(signContent, fileContent[br[2]:br[2]+br[3]]...)

	signature, err := context.createSignature(signContent, false)
	if err != nil {
		return fmt.Errorf("create signature: %w", err)
	}

	dst := make([]byte, hex.EncodedLen(len(signature)))
	hex.Encode(dst, signature)

	if len(dst) > context.signatureMaxLength {
		return fmt.Errorf("%w: need %d, reserved %d", ErrReservationExceeded, len(dst), context.signatureMaxLength)
	}

	// br[1] is the position of the '<'; the remaining reserved bytes keep
	// their zero padding.
	copy(fileContent[br[1]+1:], dst)
	return nil
}
