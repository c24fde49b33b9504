package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces an uploaded name to a safe, flat ASCII file name:
// "../../My Report (v2).pdf" becomes "My_Report_v2.pdf".
func SecureFilename(name string) (string, error) {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range decomposed {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	s := b.String()

	s = strings.NewReplacer("/", " ", "\\", " ").Replace(s)
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")

	if s == "" {
		return "", dcerrors.New(dcerrors.ErrCodeInvalidFileName, "invalid file name", nil).
			WithDetail("file", name)
	}
	return s, nil
}
