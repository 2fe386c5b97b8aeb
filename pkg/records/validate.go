package records

import (
	"fmt"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/platinummonkey/casedesk/pkg/apperr"
)

const (
	maxFieldLength = 500
	maxNoteLength  = 5000
	maxListLength  = 50
	maxFiles       = 10
)

var (
	sessoValues  = []string{"Femmina", "Maschio", "Transessuale", "Altro"}
	nucleoValues = []string{"singolo", "familiare"}
)

// FieldError is a single validation failure
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationResult collects validation failures
type ValidationResult struct {
	Errors []*FieldError
}

func (r *ValidationResult) addError(field, rule, message string) {
	r.Errors = append(r.Errors, &FieldError{Field: field, Rule: rule, Message: message})
}

// Valid reports whether no error was collected
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns a validation error listing every failure, or nil
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return apperr.Validation(strings.Join(parts, "; "))
}

func (r *ValidationResult) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		r.addError(field, "required", "is required")
		return
	}
	r.maxLength(field, value, maxFieldLength)
}

func (r *ValidationResult) maxLength(field, value string, limit int) {
	if len(value) > limit {
		r.addError(field, "max_length", fmt.Sprintf("must be at most %d characters", limit))
	}
}

func (r *ValidationResult) oneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	r.addError(field, "enum", "must be one of "+strings.Join(allowed, ", "))
}

func (r *ValidationResult) list(field string, values []string, minLen int) {
	if len(values) < minLen {
		r.addError(field, "min_items", fmt.Sprintf("must contain at least %d item", minLen))
		return
	}
	if len(values) > maxListLength {
		r.addError(field, "max_items", fmt.Sprintf("must contain at most %d items", maxListLength))
		return
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			r.addError(field, "item_required", "must not contain empty items")
			return
		}
		r.maxLength(field, v, maxFieldLength)
	}
}

func (r *ValidationResult) date(field, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse("2006-01-02", value); err == nil {
		return
	}
	if _, err := time.Parse(time.RFC3339, value); err == nil {
		return
	}
	r.addError(field, "date", "must be a date (YYYY-MM-DD)")
}

func (r *ValidationResult) dateTime(field, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse(time.RFC3339, value); err == nil {
		return
	}
	if _, err := time.Parse("2006-01-02T15:04", value); err == nil {
		return
	}
	r.addError(field, "datetime", "must be a date and time")
}

// validateRecord checks a full record against the creation schema
func validateRecord(a *Anagrafica) *ValidationResult {
	r := &ValidationResult{}
	r.required("cognome", a.Cognome)
	r.required("nome", a.Nome)
	r.oneOf("sesso", a.Sesso, sessoValues)
	r.date("dataDiNascita", a.DataDiNascita)
	r.list("cittadinanza", a.Cittadinanza, 1)
	r.oneOf("nucleo", a.Nucleo, nucleoValues)
	switch {
	case a.Figli == nil:
		r.addError("figli", "required", "is required")
	case *a.Figli < 0:
		r.addError("figli", "min", "must not be negative")
	}
	if a.Email != "" {
		if addr, err := mail.ParseAddress(a.Email); err != nil || addr.Address != a.Email {
			r.addError("email", "email", "must be a valid email address")
		}
	}
	r.list("situazioneAbitativa", a.SituazioneAbitativa, 0)
	r.list("vulnerabilita", a.Vulnerabilita, 0)

	for field, value := range map[string]string{
		"comuneDiDomicilio":     a.ComuneDiDomicilio,
		"telefono":              a.Telefono,
		"nucleoTipo":            a.NucleoTipo,
		"situazioneLegale":      a.SituazioneLegale,
		"situazioneLavorativa":  a.SituazioneLavorativa,
		"titoloDiStudioOrigine": a.TitoloDiStudioOrigine,
		"titoloDiStudioItalia":  a.TitoloDiStudioItalia,
		"conoscenzaItaliano":    a.ConoscenzaItaliano,
		"intenzioneItalia":      a.IntenzioneItalia,
		"paeseDestinazione":     a.PaeseDestinazione,
		"referral":              a.Referral,
		"referralAltro":         a.ReferralAltro,
	} {
		r.maxLength(field, value, maxFieldLength)
	}
	return r
}

func validateSubRecord(typeField, typeValue string, sub *SubRecord, uploads []Upload) *ValidationResult {
	r := &ValidationResult{}
	r.required(typeField, typeValue)
	r.list("sottocategorie", sub.Sottocategorie, 0)
	r.maxLength("altro", sub.Altro, maxFieldLength)
	r.maxLength("note", sub.Note, maxNoteLength)
	if len(uploads) > maxFiles {
		r.addError("files", "max_items", fmt.Sprintf("must contain at most %d files", maxFiles))
	}
	seen := make(map[string]bool, len(uploads))
	for _, u := range uploads {
		if !validFileName(u.Name) {
			r.addError("files", "file_name", "invalid file name")
			continue
		}
		if seen[u.Name] {
			r.addError("files", "unique", "duplicate file name "+u.Name)
		}
		seen[u.Name] = true
	}
	return r
}

// validFileName rejects names that would escape the sub-record's folder
func validFileName(name string) bool {
	if name == "" || len(name) > 255 || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return path.Base(name) == name
}
