// Package pdfseal signs PDF documents by appending an incremental update
// carrying a detached CMS (PKCS#7) signature, optionally cross-signed by an
// RFC 3161 timestamp authority, and verifies documents signed that way.
//
// The heavy lifting lives in the sign and verify packages; this package
// only bundles the common file-to-file entry points.
package pdfseal

import (
	"os"

	"github.com/pdfseal/pdfseal/sign"
	"github.com/pdfseal/pdfseal/verify"
)

// SignFile signs the PDF at input and writes the signed document to output.
func SignFile(input, output string, signData sign.SignData) error {
	return sign.SignFile(input, output, signData)
}

// VerifyFile verifies every signature in the PDF at path.
func VerifyFile(path string) ([]*verify.Status, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()
	return verify.File(file)
}
