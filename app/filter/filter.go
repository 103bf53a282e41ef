// Package filter derives retrieval restrictions from the wording of a
// question and the source scope chosen by the user.
package filter

import (
	"log/slog"
	"regexp"
	"strings"

	"legischat/textnorm"
	"legischat/types"
)

// Inferrer builds the retrieval filter for a question.
type Inferrer interface {
	Infer(question string, scope []types.DocType) types.Filter
}

// Detection is a document type referenced by a question, with the matched
// phrase for named codes and statutes.
type Detection struct {
	DocType types.DocType
	Hint    string
}

const word = `[\p{L}\p{N}_]+`

type rule struct {
	docType types.DocType
	re      *regexp.Regexp
	hint    bool
}

// Patterns run against the accent-folded, lower-cased question, first match wins.
var rules = []rule{
	{
		docType: types.DocTypeConstitution,
		re:      regexp.MustCompile(`\b(?:constitucion|carta\s+magna)\b`),
	},
	{
		docType: types.DocTypeCode,
		re:      regexp.MustCompile(`\bcodigo\s+` + word),
		hint:    true,
	},
	{
		docType: types.DocTypeStatute,
		re:      regexp.MustCompile(`\bley\s+organica\s+(?:de\s+)?` + word + `|\bley\s+de\s+` + word + `|\bley\s+` + word),
		hint:    true,
	},
	{
		docType: types.DocTypeInternationalAgreement,
		re:      regexp.MustCompile(`\b(?:convenio|tratado|acuerdo)s?\s+internacional`),
	},
}

// Detect reports the first document type referenced in the question.
func Detect(question string) (Detection, bool) {
	folded := textnorm.Fold(question)
	for _, r := range rules {
		m := r.re.FindString(folded)
		if m == "" {
			continue
		}
		d := Detection{DocType: r.docType}
		if r.hint {
			d.Hint = strings.Join(strings.Fields(m), " ")
		}
		return d, true
	}
	return Detection{}, false
}

type Engine struct {
	// FilenameHint adds the matched code or statute name as a filename
	// restriction.
	FilenameHint bool
	logger       *slog.Logger
}

func New(filenameHint bool, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{FilenameHint: filenameHint, logger: logger}
}

// Infer merges the detected reference with the user's scope. A detected
// reference overrides the scope. Without one, the "all" sentinel yields an
// empty filter and any other scope restricts to its members.
func (e *Engine) Infer(question string, scope []types.DocType) types.Filter {
	scope = EffectiveScope(scope)

	if d, ok := Detect(question); ok {
		f := types.Filter{DocTypes: []types.DocType{d.DocType}}
		if e.FilenameHint && d.Hint != "" {
			f.FilenameContains = d.Hint
		}
		e.logger.Debug("[FILTER] detected reference", "doc_type", d.DocType, "hint", d.Hint)
		return f
	}

	for _, dt := range scope {
		if dt == types.DocTypeAll {
			return types.Filter{}
		}
	}
	return types.Filter{DocTypes: scope}
}

// EffectiveScope defaults an empty selection to "all" and drops duplicates.
func EffectiveScope(scope []types.DocType) []types.DocType {
	if len(scope) == 0 {
		return []types.DocType{types.DocTypeAll}
	}
	seen := make(map[types.DocType]bool, len(scope))
	out := make([]types.DocType, 0, len(scope))
	for _, dt := range scope {
		if seen[dt] {
			continue
		}
		seen[dt] = true
		out = append(out, dt)
	}
	return out
}
