package internal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"legischat/types"
)

// ReadPDFPages validates the file with pdfcpu and extracts the text of every
// page. Pages are numbered from 0 and labelled from 1.
func ReadPDFPages(path string) ([]types.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}

	texts, err := PageTexts(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("extract text of %s: %w", path, err)
	}

	pages := make([]types.Page, ctx.PageCount)
	for i := range pages {
		pages[i] = types.Page{Number: i, Label: strconv.Itoa(i + 1)}
		if i < len(texts) {
			pages[i].Text = texts[i]
		}
	}
	return pages, nil
}

// PageTexts returns the text of each page in order. Glyphs are decoded
// through the encoding and ToUnicode map of the font that shows them, so
// CID fonts come out as readable text.
func PageTexts(r io.ReaderAt, size int64) ([]string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	texts := make([]string, reader.NumPage())
	for i := range texts {
		text, err := pageText(reader.Page(i + 1))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		texts[i] = text
	}
	return texts, nil
}

func pageText(p pdf.Page) (text string, err error) {
	if p.V.IsNull() {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page: %v", r)
		}
	}()

	fonts := make(map[string]*pdf.Font)
	for _, name := range p.Fonts() {
		f := p.Font(name)
		fonts[name] = &f
	}
	text, err = p.GetPlainText(fonts)
	if err != nil {
		return "", err
	}
	return cleanText(text), nil
}

var (
	blankRunRe = regexp.MustCompile(`[ \t]+`)
	newlineRe  = regexp.MustCompile(`\n{3,}`)
)

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = blankRunRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(newlineRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// Unreadable reports whether page text is empty or mostly glyphs that
// could not be mapped to Unicode, as happens with scanned pages and fonts
// without a ToUnicode map.
func Unreadable(text string) bool {
	var total, bad int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r == unicode.ReplacementChar || (unicode.IsControl(r) && r != '\t') {
			bad++
		}
	}
	return total == 0 || bad*5 > total
}
