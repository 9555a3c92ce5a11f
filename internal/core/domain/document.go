package domain

// Document is one input file discovered in the document folder. ID is the
// file name and is unique within a run.
type Document struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Page is the text of one PDF page. Number is 1-based.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// ExtractedText is immutable once produced by a TextExtractor.
type ExtractedText struct {
	DocumentID string `json:"document_id"`
	Pages      []Page `json:"pages"`
}

// Text joins all pages with blank lines.
func (t ExtractedText) Text() string {
	n := 0
	for _, p := range t.Pages {
		n += len(p.Text) + 2
	}
	buf := make([]byte, 0, n)
	for i, p := range t.Pages {
		if i > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, p.Text...)
	}
	return string(buf)
}
