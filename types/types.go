package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type DocType string

const (
	DocTypeAll                    DocType = "todos"
	DocTypeConstitution           DocType = "constitucion"
	DocTypeInternationalAgreement DocType = "convenio_internacional"
	DocTypeStatute                DocType = "ley"
	DocTypeCode                   DocType = "codigo"
)

// DocTypeLabels is the catalogue shown to users when choosing a source scope.
var DocTypeLabels = map[DocType]string{
	DocTypeAll:                    "Todos los documentos",
	DocTypeConstitution:           "Constitución",
	DocTypeInternationalAgreement: "Convenios Internacionales",
	DocTypeStatute:                "Leyes",
	DocTypeCode:                   "Códigos",
}

// DocTypes lists the indexable document types, without the "all" sentinel.
var DocTypes = []DocType{
	DocTypeConstitution,
	DocTypeInternationalAgreement,
	DocTypeStatute,
	DocTypeCode,
}

func (t DocType) Valid() bool {
	for _, dt := range DocTypes {
		if dt == t {
			return true
		}
	}
	return false
}

// SupportedFile reports whether the loader can read the file at path.
func SupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// Page is one unit of pagination of a source file. Sources without
// pagination are loaded as a single page numbered 0.
type Page struct {
	Number int
	Label  string
	Text   string
}

type Document struct {
	DocType  DocType
	Filename string // normalized
	Source   string // path the document was loaded from
	Pages    []Page
}

// Key identifies a document in the index regardless of where it was loaded from.
func (d Document) Key() string {
	return SourceKey(d.DocType, d.Filename)
}

func SourceKey(docType DocType, filename string) string {
	return string(docType) + "/" + filename
}

type Chunk struct {
	ID         string
	DocType    DocType
	Filename   string
	Source     string
	Page       int
	PageLabel  string
	Index      int // position within the document
	Start      int // rune offset of the span within its page
	End        int
	Content    string
	SearchText string
	FullText   string
	CreatedAt  time.Time
}

// BuildFullText renders the provenance-prefixed answer context for a chunk.
func BuildFullText(docType DocType, filename, pageLabel, content string) string {
	return fmt.Sprintf("Tipo: %s. Archivo: %s. Página: %s. %s", docType, filename, pageLabel, content)
}

// Record is the unit stored in the vector index.
type Record struct {
	Chunk
	Embedding []float32
	Score     float64
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// Filter restricts a similarity search. The zero value is unrestricted.
type Filter struct {
	DocTypes         []DocType `json:"doc_types,omitempty"`
	FilenameContains string    `json:"filename_contains,omitempty"`
}

func (f Filter) IsEmpty() bool {
	return len(f.DocTypes) == 0 && f.FilenameContains == ""
}

func (f Filter) String() string {
	if f.IsEmpty() {
		return "{}"
	}
	return fmt.Sprintf("{doc_type in %v, filename contains %q}", f.DocTypes, f.FilenameContains)
}

type Config struct {
	DataPath         string
	Corpus           map[string]DocType // directory under DataPath -> doc type
	ChunkSize        int
	ChunkOverlap     int
	BatchSize        int
	WriterWorkers    int
	RepresentWorkers int
	MonitoringTime   time.Duration
	WatchInterval    time.Duration
}
