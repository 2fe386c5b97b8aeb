package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

func TestMemoryDocumentStore_GetMissing(t *testing.T) {
	store := NewMemoryDocumentStore()
	_, err := store.Get(context.Background(), CollectionAnagrafica, "nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestMemoryDocumentStore_CreateAndPut(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	doc := &Document{
		Collection: CollectionAnagrafica,
		ID:         "r1",
		Data:       json.RawMessage(`{"nome":"Mario"}`),
		Structures: structures.New("verona"),
	}
	require.NoError(t, store.Create(ctx, doc))
	assert.ErrorIs(t, store.Create(ctx, doc), ErrAlreadyExists)

	got, err := store.Get(ctx, CollectionAnagrafica, "r1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"nome":"Mario"}`, string(got.Data))
	created := got.CreatedAt

	time.Sleep(time.Millisecond)
	doc.Data = json.RawMessage(`{"nome":"Luigi"}`)
	doc.Structures = structures.New("milano")
	require.NoError(t, store.Put(ctx, doc))

	got, err = store.Get(ctx, CollectionAnagrafica, "r1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"nome":"Luigi"}`, string(got.Data))
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.After(created))

	byVerona, err := store.ListByStructure(ctx, CollectionAnagrafica, "verona")
	require.NoError(t, err)
	assert.Empty(t, byVerona, "index follows the latest write")

	byMilano, err := store.ListByStructure(ctx, CollectionAnagrafica, "milano")
	require.NoError(t, err)
	require.Len(t, byMilano, 1)
	assert.Equal(t, "r1", byMilano[0].ID)
}

func TestMemoryDocumentStore_ListByParent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	for _, d := range []*Document{
		{Collection: CollectionAccessi, ID: "a1", ParentID: "r1", Data: json.RawMessage(`{}`)},
		{Collection: CollectionAccessi, ID: "a2", ParentID: "r1", Data: json.RawMessage(`{}`)},
		{Collection: CollectionAccessi, ID: "a3", ParentID: "r2", Data: json.RawMessage(`{}`)},
		{Collection: CollectionEventi, ID: "e1", ParentID: "r1", Data: json.RawMessage(`{}`)},
	} {
		require.NoError(t, store.Put(ctx, d))
	}

	docs, err := store.ListByParent(ctx, CollectionAccessi, "r1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	all, err := store.List(ctx, CollectionAccessi)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryDocumentStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()
	require.NoError(t, store.Put(ctx, &Document{Collection: "c", ID: "1", Data: json.RawMessage(`{"a":1}`)}))

	got, err := store.Get(ctx, "c", "1")
	require.NoError(t, err)
	got.Data[2] = 'b'

	again, err := store.Get(ctx, "c", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(again.Data))
}

func TestMemoryDocumentStore_Update(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()
	require.NoError(t, store.Put(ctx, &Document{
		Collection: "c", ID: "1", Data: json.RawMessage(`{"v":1}`), Structures: structures.New("verona"),
	}))
	before, err := store.Get(ctx, "c", "1")
	require.NoError(t, err)

	updated, err := store.Update(ctx, "c", "1", func(doc *Document) error {
		assert.JSONEq(t, `{"v":1}`, string(doc.Data))
		doc.Data = json.RawMessage(`{"v":2}`)
		doc.Structures = structures.New("roma")
		return nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(updated.Data))
	assert.True(t, updated.CreatedAt.Equal(before.CreatedAt))

	roma, err := store.ListByStructure(ctx, "c", "roma")
	require.NoError(t, err)
	assert.Len(t, roma, 1)

	failed := errors.New("rejected")
	_, err = store.Update(ctx, "c", "1", func(doc *Document) error {
		doc.Data = json.RawMessage(`{"v":3}`)
		return failed
	})
	assert.ErrorIs(t, err, failed)
	got, err := store.Get(ctx, "c", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Data), "a failed mutation writes nothing")

	_, err = store.Update(ctx, "c", "missing", func(*Document) error { return nil })
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
