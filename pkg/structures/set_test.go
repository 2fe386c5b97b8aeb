package structures

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DropsBlanksAndDuplicates(t *testing.T) {
	s := New("verona", " verona ", "", "  ", "milano")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"milano", "verona"}, s.Slice())
}

func TestSet_ZeroValue(t *testing.T) {
	var s Set
	assert.True(t, s.IsEmpty())
	assert.False(t, s.Contains("s1"))
	assert.False(t, s.Intersects(New("s1")))
	assert.Equal(t, []string{}, s.Slice())
}

func TestSet_Intersects(t *testing.T) {
	tests := []struct {
		name string
		a, b Set
		want bool
	}{
		{"both empty", New(), New(), false},
		{"left empty", New(), New("s1"), false},
		{"right empty", New("s1"), New(), false},
		{"same single", New("s1"), New("s1"), true},
		{"partial overlap", New("s1", "s2"), New("s2", "s3"), true},
		{"disjoint", New("s1"), New("s2"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Intersects(tt.b))
			assert.Equal(t, tt.want, tt.b.Intersects(tt.a))
		})
	}
}

func TestSet_SubsetDifferenceUnion(t *testing.T) {
	a := New("s1", "s2")
	b := New("s1", "s2", "s3")

	assert.True(t, a.SubsetOf(b))
	assert.False(t, b.SubsetOf(a))
	assert.True(t, New().SubsetOf(a))
	assert.Equal(t, []string{"s3"}, b.Difference(a).Slice())
	assert.True(t, a.Union(New("s3")).Equal(b))
}

func TestSet_JSON(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		var s Set
		require.NoError(t, json.Unmarshal([]byte(`["b","a","a"]`), &s))
		assert.Equal(t, []string{"a", "b"}, s.Slice())
	})

	t.Run("single string", func(t *testing.T) {
		var s Set
		require.NoError(t, json.Unmarshal([]byte(`"verona"`), &s))
		assert.True(t, s.Contains("verona"))
	})

	t.Run("null", func(t *testing.T) {
		var s Set
		require.NoError(t, json.Unmarshal([]byte(`null`), &s))
		assert.True(t, s.IsEmpty())
	})

	t.Run("wrong type", func(t *testing.T) {
		var s Set
		assert.Error(t, json.Unmarshal([]byte(`42`), &s))
	})

	t.Run("encodes empty as array", func(t *testing.T) {
		data, err := json.Marshal(struct {
			S Set `json:"s"`
		}{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"s":[]}`, string(data))
	})
}

func raw(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return doc
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		fields []string
		want   []string
	}{
		{"canonical record", `{"canBeAccessedBy":["s1","s2"]}`, RecordFields, []string{"s1", "s2"}},
		{"legacy record", `{"structureIds":["s3"]}`, RecordFields, []string{"s3"}},
		{"canonical wins", `{"canBeAccessedBy":["s1"],"structureIds":["s9"]}`, RecordFields, []string{"s1"}},
		{"empty canonical falls back", `{"canBeAccessedBy":[],"structureIds":["s9"]}`, RecordFields, []string{"s9"}},
		{"legacy singular operator", `{"structureId":"verona"}`, OperatorFields, []string{"verona"}},
		{"operator array", `{"structureIds":["roma"],"structureId":"verona"}`, OperatorFields, []string{"roma"}},
		{"malformed skipped", `{"structureIds":{"x":1},"structureId":"verona"}`, OperatorFields, []string{"verona"}},
		{"nothing", `{"nome":"Mario"}`, RecordFields, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(raw(t, tt.doc), tt.fields...).Slice())
		})
	}
}

func TestIsLegacy(t *testing.T) {
	assert.False(t, IsLegacy(raw(t, `{"canBeAccessedBy":["s1"]}`), RecordFields...))
	assert.True(t, IsLegacy(raw(t, `{"structureIds":["s1"]}`), RecordFields...))
	assert.False(t, IsLegacy(raw(t, `{}`), RecordFields...))
	assert.True(t, IsLegacy(raw(t, `{"structureId":"s1"}`), OperatorFields...))
}
