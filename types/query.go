package types

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("scope", func(fl validator.FieldLevel) bool {
		dt := DocType(fl.Field().String())
		return dt == DocTypeAll || dt.Valid()
	})
	return v
}

// QueryParams is the session-facing request. SessionID selects server-held
// history; without it, History is used as given.
type QueryParams struct {
	SessionID string   `json:"session_id" validate:"omitempty,uuid"`
	Question  string   `json:"question" validate:"notblank"`
	Sources   []string `json:"sources" validate:"dive,scope"`
	History   []Turn   `json:"history" validate:"dive"`
}

type UploadParams struct {
	DocType string `params:"doc_type" validate:"required,scope,ne=todos"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *QueryParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *UploadParams) Validate() map[string]string {
	return validateStruct(params)
}

// Scope converts the selected sources into doc types. An empty selection
// defaults to the "all" sentinel.
func (params *QueryParams) Scope() []DocType {
	if len(params.Sources) == 0 {
		return []DocType{DocTypeAll}
	}
	scope := make([]DocType, len(params.Sources))
	for i, s := range params.Sources {
		scope[i] = DocType(s)
	}
	return scope
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

type SearchResponse struct {
	SessionID         string     `json:"session_id,omitempty"`
	Answer            string     `json:"answer"`
	CondensedQuestion string     `json:"condensed_question"`
	Evidence          []Evidence `json:"evidence"`
	Timestamp         time.Time  `json:"timestamp"`
}

type Evidence struct {
	Source  string  `json:"source"`
	DocType DocType `json:"doc_type"`
	Page    string  `json:"page"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// NewEvidence exposes a retrieved record to the user. Content is always the
// full text, never the search representation.
func NewEvidence(r Record) Evidence {
	return Evidence{
		Source:  r.Filename,
		DocType: r.DocType,
		Page:    r.PageLabel,
		Content: r.FullText,
		Score:   r.Score,
	}
}
