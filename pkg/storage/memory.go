package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

type memoryKey struct {
	collection string
	id         string
}

type memoryEntry struct {
	doc        Document
	structures structures.Set
}

// MemoryDocumentStore is an in-process DocumentStore for tests and local
// development
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[memoryKey]memoryEntry
	now  func() time.Time
}

// NewMemoryDocumentStore creates an empty in-memory store
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs: make(map[memoryKey]memoryEntry),
		now:  time.Now,
	}
}

func (m *MemoryDocumentStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.docs[memoryKey{collection, id}]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, collection+"/"+id+" not found")
	}
	return copyDoc(entry.doc), nil
}

func (m *MemoryDocumentStore) Create(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{doc.Collection, doc.ID}
	if _, exists := m.docs[key]; exists {
		return ErrAlreadyExists
	}
	m.store(key, doc, time.Time{})
	return nil
}

func (m *MemoryDocumentStore) Put(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{doc.Collection, doc.ID}
	created := time.Time{}
	if existing, ok := m.docs[key]; ok {
		created = existing.doc.CreatedAt
	}
	m.store(key, doc, created)
	return nil
}

func (m *MemoryDocumentStore) Update(ctx context.Context, collection, id string, mutate Mutator) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{collection, id}
	entry, ok := m.docs[key]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, collection+"/"+id+" not found")
	}
	doc := copyDoc(entry.doc)
	if err := mutate(doc); err != nil {
		return nil, err
	}
	doc.Collection, doc.ID = collection, id
	m.store(key, doc, entry.doc.CreatedAt)
	return copyDoc(m.docs[key].doc), nil
}

func (m *MemoryDocumentStore) store(key memoryKey, doc *Document, created time.Time) {
	now := m.now().UTC()
	stored := *copyDoc(*doc)
	if created.IsZero() {
		created = doc.CreatedAt
		if created.IsZero() {
			created = now
		}
	}
	stored.CreatedAt = created
	stored.UpdatedAt = now
	m.docs[key] = memoryEntry{doc: stored, structures: doc.Structures}
}

func (m *MemoryDocumentStore) ListByStructure(ctx context.Context, collection, structureID string) ([]*Document, error) {
	return m.filter(func(k memoryKey, e memoryEntry) bool {
		return k.collection == collection && e.structures.Contains(structureID)
	}), nil
}

func (m *MemoryDocumentStore) ListByParent(ctx context.Context, collection, parentID string) ([]*Document, error) {
	return m.filter(func(k memoryKey, e memoryEntry) bool {
		return k.collection == collection && e.doc.ParentID == parentID
	}), nil
}

func (m *MemoryDocumentStore) List(ctx context.Context, collection string) ([]*Document, error) {
	return m.filter(func(k memoryKey, e memoryEntry) bool {
		return k.collection == collection
	}), nil
}

// filter returns matching documents newest first, like the SQL store
func (m *MemoryDocumentStore) filter(match func(memoryKey, memoryEntry) bool) []*Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Document, 0)
	for k, e := range m.docs {
		if match(k, e) {
			out = append(out, copyDoc(e.doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryDocumentStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryDocumentStore) Close() error { return nil }

func copyDoc(doc Document) *Document {
	out := doc
	out.Data = append([]byte(nil), doc.Data...)
	out.Structures = structures.Set{}
	return &out
}
