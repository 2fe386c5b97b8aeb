// Package structures defines the canonical set of structure identifiers used
// for every access decision.
//
// Stored documents carry structure membership in several historical shapes:
// an array under canBeAccessedBy, an array under structureIds, or a single
// string under structureId. Set decodes all of them, so call sites never deal
// with the ambiguity.
package structures

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Set is an unordered set of structure identifiers. The zero value is an
// empty set and is ready to use.
type Set struct {
	ids map[string]struct{}
}

// New builds a set from the given identifiers. Blank identifiers are dropped
// and surrounding whitespace is trimmed.
func New(ids ...string) Set {
	s := Set{}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s *Set) add(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}

// Len returns the number of identifiers in the set.
func (s Set) Len() int { return len(s.ids) }

// IsEmpty reports whether the set has no identifiers.
func (s Set) IsEmpty() bool { return len(s.ids) == 0 }

// Contains reports whether id is a member of the set.
func (s Set) Contains(id string) bool {
	_, ok := s.ids[strings.TrimSpace(id)]
	return ok
}

// Intersects reports whether the two sets share at least one identifier.
// An empty set intersects nothing, including another empty set.
func (s Set) Intersects(other Set) bool {
	small, large := s, other
	if small.Len() > large.Len() {
		small, large = large, small
	}
	for id := range small.ids {
		if _, ok := large.ids[id]; ok {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every identifier of s is also in other.
// The empty set is a subset of everything.
func (s Set) SubsetOf(other Set) bool {
	for id := range s.ids {
		if _, ok := other.ids[id]; !ok {
			return false
		}
	}
	return true
}

// Difference returns the identifiers of s that are not in other.
func (s Set) Difference(other Set) Set {
	out := Set{}
	for id := range s.ids {
		if _, ok := other.ids[id]; !ok {
			out.add(id)
		}
	}
	return out
}

// Union returns a new set with the identifiers of both sets.
func (s Set) Union(other Set) Set {
	out := Set{}
	for id := range s.ids {
		out.add(id)
	}
	for id := range other.ids {
		out.add(id)
	}
	return out
}

// Equal reports whether both sets hold the same identifiers.
func (s Set) Equal(other Set) bool {
	return s.Len() == other.Len() && s.SubsetOf(other)
}

// Slice returns the identifiers in sorted order.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) String() string {
	return "[" + strings.Join(s.Slice(), ",") + "]"
}

// MarshalJSON always encodes the set as a sorted array, never null.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON accepts an array of strings, a single string or null.
func (s *Set) UnmarshalJSON(data []byte) error {
	*s = Set{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	if strings.HasPrefix(trimmed, "\"") {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("invalid structure id: %w", err)
		}
		s.add(single)
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("invalid structure id list: %w", err)
	}
	for _, id := range many {
		s.add(id)
	}
	return nil
}
