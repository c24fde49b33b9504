// Package extract turns uploaded bytes into plain text and sanitises upload
// file names.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
)

// Supported file extensions, lower case.
const (
	ExtText = ".txt"
	ExtPDF  = ".pdf"
)

// Supported reports whether name has an extension docchat can extract.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtText, ExtPDF:
		return true
	}
	return false
}

// Extract returns the text content of an uploaded file. Text files are decoded
// as UTF-8 with invalid bytes dropped. PDF pages are joined with "\n"; a page
// that cannot be read contributes an empty string.
func Extract(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtText:
		return decodeUTF8(trimBOM(data)), nil
	case ExtPDF:
		return extractPDF(name, data)
	default:
		return "", dcerrors.New(dcerrors.ErrCodeUnsupportedType, "unsupported file type", nil).
			WithDetail("file", name)
	}
}

// decodeUTF8 drops invalid byte sequences instead of substituting U+FFFD.
func decodeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var b strings.Builder
	b.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r != utf8.RuneError || size > 1 {
			b.WriteRune(r)
		}
		data = data[size:]
	}
	return b.String()
}

func extractionFailed(name string, err error) error {
	return dcerrors.New(dcerrors.ErrCodeExtractionFailed, fmt.Sprintf("failed to read %s", name), err).
		WithSuggestion("Check that the file is a valid, unencrypted PDF")
}

// trimBOM strips a UTF-8 byte order mark.
func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
