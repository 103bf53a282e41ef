package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"legischat/textnorm"
	"legischat/types"
)

// DocumentLoader reads corpus files into documents named by their
// normalized filename.
type DocumentLoader struct {
	normalizer textnorm.Normalizer
	logger     *slog.Logger
}

func NewDocumentLoader(n textnorm.Normalizer, logger *slog.Logger) *DocumentLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentLoader{normalizer: n, logger: logger}
}

func (l *DocumentLoader) LoadFile(path string, docType types.DocType) (types.Document, error) {
	doc := types.Document{
		DocType:  docType,
		Filename: l.normalizer.Normalize(filepath.Base(path)),
		Source:   path,
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err := ReadPDFPages(path)
		if err != nil {
			return types.Document{}, err
		}
		doc.Pages = pages
		var unreadable []string
		for _, p := range pages {
			if Unreadable(p.Text) {
				unreadable = append(unreadable, p.Label)
			}
		}
		if len(unreadable) > 0 {
			l.logger.Warn("[INGEST] pages without extractable text", "path", path, "pages", strings.Join(unreadable, ","), "of", len(pages))
		}
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return types.Document{}, err
		}
		doc.Pages = []types.Page{{Number: 0, Label: "0", Text: string(data)}}
	default:
		return types.Document{}, fmt.Errorf("unsupported file type: %s", path)
	}
	return doc, nil
}

// LoadDirectory loads the supported files of dir in name order. A file that
// cannot be read is logged and skipped.
func (l *DocumentLoader) LoadDirectory(dir string, docType types.DocType) ([]types.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrSourceMissing, dir)
		}
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []types.Document
	for _, e := range entries {
		if e.IsDir() || !types.SupportedFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		doc, err := l.LoadFile(path, docType)
		if err != nil {
			l.logger.Error("[INGEST] failed to load file", "path", path, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
