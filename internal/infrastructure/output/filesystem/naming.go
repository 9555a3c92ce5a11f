package filesystem

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 48

// Slug turns an identifier into a lowercase ASCII path segment. Distinct
// identifiers may share a slug; use Segment for collision-free names.
func Slug(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(sb.String(), "-")
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-")
	}
	if out == "" {
		out = "x"
	}
	return out
}

// Segment is the slug of id followed by a short hash of the raw id.
func Segment(id string) string {
	return Slug(id) + "-" + shortHash(id)
}

// ResultKey is the storage key of one result file, relative to the output root.
func ResultKey(model, documentID, caseName, ext string) string {
	base := strings.TrimSuffix(documentID, filepath.Ext(documentID))
	return path.Join(Slug(model), Slug(base)+"-"+shortHash(documentID), Segment(caseName)+"."+ext)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}
