package records

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/platinummonkey/casedesk/pkg/structures"
)

// Patch is a partial record update keyed by JSON field name
type Patch map[string]json.RawMessage

var patchableFields = map[string]bool{
	"cognome":                       true,
	"nome":                          true,
	"sesso":                         true,
	"dataDiNascita":                 true,
	"cittadinanza":                  true,
	"comuneDiDomicilio":             true,
	"telefono":                      true,
	"email":                         true,
	"nucleo":                        true,
	"nucleoTipo":                    true,
	"figli":                         true,
	"situazioneLegale":              true,
	"situazioneAbitativa":           true,
	"situazioneLavorativa":          true,
	"titoloDiStudioOrigine":         true,
	"titoloDiStudioItalia":          true,
	"conoscenzaItaliano":            true,
	"vulnerabilita":                 true,
	"intenzioneItalia":              true,
	"paeseDestinazione":             true,
	"referral":                      true,
	"referralAltro":                 true,
	structures.FieldCanBeAccessedBy: true,
}

// Fields returns the patched field names in sorted order
func (p Patch) Fields() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// check rejects empty patches and fields that cannot be patched. Audit,
// ownership and deletion fields are only ever written by the service.
func (p Patch) check() *ValidationResult {
	r := &ValidationResult{}
	if len(p) == 0 {
		r.addError("body", "required", "no fields to update")
		return r
	}
	for _, field := range p.Fields() {
		if !patchableFields[field] {
			r.addError(field, "immutable", "cannot be updated")
		}
	}
	return r
}

// proposedStructures decodes the canBeAccessedBy change, if any
func (p Patch) proposedStructures() (structures.Set, bool, error) {
	raw, ok := p[structures.FieldCanBeAccessedBy]
	if !ok {
		return structures.Set{}, false, nil
	}
	var set structures.Set
	if err := json.Unmarshal(raw, &set); err != nil {
		return structures.Set{}, true, err
	}
	return set, true, nil
}

// apply overlays p on a copy of current
func (p Patch) apply(current *Anagrafica) (*Anagrafica, error) {
	data, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	for k, v := range p {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patched record: %w", err)
	}
	var next Anagrafica
	if err := json.Unmarshal(merged, &next); err != nil {
		return nil, err
	}
	return &next, nil
}
