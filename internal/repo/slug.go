package repo

import (
	"sort"
	"strings"
	"unicode"
)

// Slugify turns a title into a lowercase, dash-separated file name.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) && r < unicode.MaxASCII, unicode.IsDigit(r) && r < unicode.MaxASCII:
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if len(s) > 80 {
		s = strings.TrimSuffix(s[:80], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

func sortRecords(recs []PublishRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].PublishedAt.After(recs[j].PublishedAt)
	})
}
