// Package textextract turns uploaded documents into plain text.
package textextract

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind is a document format the extractor understands.
type Kind string

const (
	KindUnknown Kind = ""
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindText    Kind = "text"
	KindHTML    Kind = "html"
)

var mimeKinds = map[string]Kind{
	"application/pdf": KindPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindDOCX,
	"text/plain":    KindText,
	"text/markdown": KindText,
	"text/csv":      KindText,
	"text/html":     KindHTML,
}

var extKinds = map[string]Kind{
	".pdf":      KindPDF,
	".docx":     KindDOCX,
	".txt":      KindText,
	".md":       KindText,
	".markdown": KindText,
	".csv":      KindText,
	".html":     KindHTML,
	".htm":      KindHTML,
}

// KindOf decides the format from the declared MIME type, falling back to the
// filename extension when the MIME type is missing or unrecognized.
func KindOf(mimeType, filename string) Kind {
	if mt, _, err := mime.ParseMediaType(strings.TrimSpace(mimeType)); err == nil {
		if k, ok := mimeKinds[strings.ToLower(mt)]; ok {
			return k
		}
	}
	if k, ok := extKinds[strings.ToLower(filepath.Ext(filename))]; ok {
		return k
	}
	return KindUnknown
}

// Extract reads the document at path. Unrecognized formats yield "" and no
// error; the caller decides whether too little text is a failure.
func Extract(path, mimeType, filename string) (string, error) {
	var (
		text string
		err  error
	)

	switch KindOf(mimeType, filename) {
	case KindPDF:
		text, err = extractPDF(path)
	case KindDOCX:
		text, err = extractDOCX(path)
	case KindText:
		text, err = extractPlain(path)
	case KindHTML:
		text, err = extractHTML(path)
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return Clean(text), nil
}

var (
	inlineSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// Clean NFC-normalizes s, collapses runs of spaces, keeps at most one blank
// line between paragraphs and trims the result.
func Clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = inlineSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
