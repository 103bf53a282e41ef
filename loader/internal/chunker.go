package internal

import (
	"strings"

	"legischat/types"
)

// Separators in order of preference. A span ends right after the separator.
var defaultSeparators = []string{"\n\n", "\n", ".", "?", "!", " "}

type Span struct {
	Start int // rune offsets into the source text
	End   int
	Text  string
}

// Chunker cuts text into overlapping spans of at most Size runes. Consecutive
// spans share at most Overlap runes, and every rune of the input belongs to
// at least one span.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 2000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{Size: size, Overlap: overlap, Separators: defaultSeparators}
}

func (c *Chunker) Split(text string) []Span {
	runes := []rune(text)
	n := len(runes)

	var spans []Span
	start := 0
	for start < n {
		end := n
		if n-start > c.Size {
			end = c.splitPoint(runes, start)
		}
		if s := string(runes[start:end]); strings.TrimSpace(s) != "" {
			spans = append(spans, Span{Start: start, End: end, Text: s})
		}
		if end == n {
			break
		}
		start = c.nextStart(runes, start, end)
	}
	return spans
}

// splitPoint returns the end of the span starting at start. It prefers the
// last occurrence of the highest ranked separator inside the window that
// still leaves room for the overlap, and cuts hard otherwise.
func (c *Chunker) splitPoint(runes []rune, start int) int {
	window := string(runes[start : start+c.Size])
	for _, sep := range c.Separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		end := start + len([]rune(window[:idx])) + len([]rune(sep))
		if end-start > c.Overlap {
			return end
		}
	}
	return start + c.Size
}

// nextStart backs up Overlap runes from end and then moves forward to the
// first word boundary, so the next span does not open mid-word.
func (c *Chunker) nextStart(runes []rune, start, end int) int {
	next := end - c.Overlap
	if next <= start {
		next = start + 1
	}
	for i := next; i < end; i++ {
		if runes[i] == ' ' || runes[i] == '\n' {
			return i + 1
		}
	}
	return next
}

// Chunk splits every page of the document. Chunks inherit the document's
// type and filename and their page of origin, and carry the provenance
// prefixed full text.
func (c *Chunker) Chunk(doc types.Document) []types.Chunk {
	var chunks []types.Chunk
	for _, page := range doc.Pages {
		for _, span := range c.Split(page.Text) {
			chunks = append(chunks, types.Chunk{
				DocType:   doc.DocType,
				Filename:  doc.Filename,
				Source:    doc.Source,
				Page:      page.Number,
				PageLabel: page.Label,
				Index:     len(chunks),
				Start:     span.Start,
				End:       span.End,
				Content:   span.Text,
				FullText:  types.BuildFullText(doc.DocType, doc.Filename, page.Label, span.Text),
			})
		}
	}
	return chunks
}
