package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

func TestAuthorize_Intersection(t *testing.T) {
	tests := []struct {
		name     string
		operator []string
		record   []string
		want     bool
	}{
		{"both empty", nil, nil, false},
		{"record empty", []string{"s1"}, nil, false},
		{"operator empty", nil, []string{"s1"}, false},
		{"same structure", []string{"s1"}, []string{"s1"}, true},
		{"one shared", []string{"s1", "s2"}, []string{"s2", "s3"}, true},
		{"disjoint", []string{"s1"}, []string{"s2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, op := range []Operation{Read, Write, Delete} {
				d := Authorize(structures.New(tt.operator...), structures.New(tt.record...), op)
				assert.Equal(t, tt.want, d.Allowed, "operation %s", op)
				assert.Equal(t, op, d.Operation)
			}
		})
	}
}

func TestAuthorize_Scenarios(t *testing.T) {
	t.Run("operator in one of several record structures", func(t *testing.T) {
		d := Authorize(structures.New("verona"), structures.New("verona", "milano"), Read)
		assert.True(t, d.Allowed)
		assert.NoError(t, d.Err())
	})

	t.Run("operator in a different structure", func(t *testing.T) {
		d := Authorize(structures.New("roma"), structures.New("verona"), Read)
		assert.False(t, d.Allowed)
		assert.True(t, errors.Is(d.Err(), apperr.ErrForbidden))
	})
}

func TestAuthorizeCreate(t *testing.T) {
	operator := structures.New("s1", "s2")

	t.Run("defaults to acting structure", func(t *testing.T) {
		set, d := AuthorizeCreate(operator, "s1", structures.Set{})
		assert.True(t, d.Allowed)
		assert.Equal(t, []string{"s1"}, set.Slice())
	})

	t.Run("explicit set within membership", func(t *testing.T) {
		set, d := AuthorizeCreate(operator, "s1", structures.New("s2"))
		assert.True(t, d.Allowed)
		assert.Equal(t, []string{"s1", "s2"}, set.Slice())
	})

	t.Run("acting structure not assigned", func(t *testing.T) {
		set, d := AuthorizeCreate(operator, "s3", structures.Set{})
		assert.False(t, d.Allowed)
		assert.True(t, set.IsEmpty())
	})

	t.Run("requesting a foreign structure is forbidden", func(t *testing.T) {
		set, d := AuthorizeCreate(structures.New("s1"), "s1", structures.New("s2"))
		assert.False(t, d.Allowed)
		assert.True(t, set.IsEmpty())
		assert.True(t, errors.Is(d.Err(), apperr.ErrForbidden))
	})

	t.Run("operator without structures", func(t *testing.T) {
		_, d := AuthorizeCreate(structures.Set{}, "s1", structures.Set{})
		assert.False(t, d.Allowed)
	})
}

func TestAuthorizeChange(t *testing.T) {
	operator := structures.New("s1", "s2")

	t.Run("checked against current set first", func(t *testing.T) {
		// The proposed set contains the operator's structure, but the
		// current one does not.
		d := AuthorizeChange(operator, structures.New("s9"), structures.New("s1"))
		assert.False(t, d.Allowed)
	})

	t.Run("widening to own structure", func(t *testing.T) {
		d := AuthorizeChange(operator, structures.New("s1"), structures.New("s1", "s2"))
		assert.True(t, d.Allowed)
	})

	t.Run("widening to foreign structure", func(t *testing.T) {
		d := AuthorizeChange(operator, structures.New("s1"), structures.New("s1", "s7"))
		assert.False(t, d.Allowed)
	})

	t.Run("narrowing away from own structure", func(t *testing.T) {
		d := AuthorizeChange(operator, structures.New("s1", "s7"), structures.New("s7"))
		assert.True(t, d.Allowed)
	})

	t.Run("emptying", func(t *testing.T) {
		d := AuthorizeChange(operator, structures.New("s1"), structures.Set{})
		assert.False(t, d.Allowed)
	})
}
