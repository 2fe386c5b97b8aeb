package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/casedesk/pkg/operators"
	"github.com/platinummonkey/casedesk/pkg/storage"
)

func TestSweep_NormalizesOperatorsAndRecords(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryDocumentStore()

	put := func(collection, id string, data map[string]interface{}) {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, &storage.Document{Collection: collection, ID: id, Data: raw}))
	}
	put(storage.CollectionOperators, "op-1", map[string]interface{}{"structureId": "verona"})
	put(storage.CollectionAnagrafica, "r1", map[string]interface{}{
		"cognome":      "Rossi",
		"nome":         "Mario",
		"structureIds": []string{"verona"},
	})

	require.NoError(t, newSweep(store)(ctx))

	op, err := operators.NewDirectory(store).Resolve(ctx, "op-1")
	require.NoError(t, err)
	assert.True(t, op.StructureIDs.Contains("verona"))

	doc, err := store.Get(ctx, storage.CollectionAnagrafica, "r1")
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc.Data, &raw))
	assert.JSONEq(t, `["verona"]`, string(raw["canBeAccessedBy"]))
	assert.True(t, doc.Structures.Contains("verona"))

	// a second pass has nothing left to do
	require.NoError(t, newSweep(store)(ctx))
}
