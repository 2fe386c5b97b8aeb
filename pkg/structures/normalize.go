package structures

import "encoding/json"

// Field names under which structure membership has been stored over time.
const (
	FieldCanBeAccessedBy = "canBeAccessedBy"
	FieldStructureIDs    = "structureIds"
	FieldStructureID     = "structureId"
)

// Normalize extracts the canonical set from a raw document. The first field
// present and non-empty wins, in the order given. Fields that fail to decode
// are skipped.
func Normalize(doc map[string]json.RawMessage, fields ...string) Set {
	for _, field := range fields {
		raw, ok := doc[field]
		if !ok {
			continue
		}
		var s Set
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if !s.IsEmpty() {
			return s
		}
	}
	return Set{}
}

// RecordFields is the lookup order for a record's authorized structures.
var RecordFields = []string{FieldCanBeAccessedBy, FieldStructureIDs}

// OperatorFields is the lookup order for an operator's structures.
var OperatorFields = []string{FieldStructureIDs, FieldStructureID}

// IsLegacy reports whether doc stores its structures anywhere other than
// canonical, the first name in fields. Documents without any structure field
// are not legacy.
func IsLegacy(doc map[string]json.RawMessage, fields ...string) bool {
	if len(fields) == 0 {
		return false
	}
	canonical := Normalize(doc, fields[0])
	if !canonical.IsEmpty() {
		return false
	}
	return !Normalize(doc, fields[1:]...).IsEmpty()
}
