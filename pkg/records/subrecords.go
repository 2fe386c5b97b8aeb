package records

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/casedesk/pkg/access"
	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/audit"
	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/storage"
)

// Upload is an attachment submitted with a sub-record
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Kind selects a sub-record collection
type Kind struct {
	collection string
	folder     string
	event      audit.EventType
	resource   audit.ResourceType
}

// Folder is the path segment of the kind in URLs and object keys
func (k Kind) Folder() string { return k.folder }

var (
	KindAccess = Kind{storage.CollectionAccessi, "accessi", audit.EventTypeDataAccessCreate, audit.ResourceTypeAccess}
	KindEvent  = Kind{storage.CollectionEventi, "eventi", audit.EventTypeDataEventCreate, audit.ResourceTypeEvent}
)

// KindByFolder maps "accessi" and "eventi" to their kind
func KindByFolder(folder string) (Kind, bool) {
	switch folder {
	case KindAccess.folder:
		return KindAccess, true
	case KindEvent.folder:
		return KindEvent, true
	}
	return Kind{}, false
}

// AttachmentKey is the object key of an attachment
func AttachmentKey(recordID string, kind Kind, subID, name string) string {
	return "files/" + recordID + "/" + kind.folder + "/" + subID + "/" + name
}

// CreateAccess stores an access under a record the operator may write
func (s *Service) CreateAccess(ctx context.Context, identity *auth.Identity, recordID string, input *AccessInput, uploads []Upload) (*Access, error) {
	if input == nil {
		return nil, apperr.Validation("request body is empty")
	}
	created := &Access{
		SubRecord: SubRecord{
			Sottocategorie: input.Sottocategorie,
			Altro:          input.Altro,
			Note:           input.Note,
		},
		TipoAccesso: input.TipoAccesso,
	}
	check := validateSubRecord("tipoAccesso", input.TipoAccesso, &created.SubRecord, uploads)
	if err := s.createSubRecord(ctx, identity, recordID, input.StructureID, KindAccess, &created.SubRecord, check, uploads, created); err != nil {
		return nil, err
	}
	return created, nil
}

// CreateEvent stores an event under a record the operator may write
func (s *Service) CreateEvent(ctx context.Context, identity *auth.Identity, recordID string, input *EventInput, uploads []Upload) (*Event, error) {
	if input == nil {
		return nil, apperr.Validation("request body is empty")
	}
	created := &Event{
		SubRecord: SubRecord{
			Sottocategorie: input.Sottocategorie,
			Altro:          input.Altro,
			Note:           input.Note,
		},
		TipoEvento: input.TipoEvento,
		DataOra:    input.DataOra,
	}
	check := validateSubRecord("tipoEvento", input.TipoEvento, &created.SubRecord, uploads)
	check.dateTime("dataOra", input.DataOra)
	if err := s.createSubRecord(ctx, identity, recordID, input.StructureID, KindEvent, &created.SubRecord, check, uploads, created); err != nil {
		return nil, err
	}
	return created, nil
}

// createSubRecord authorizes against the parent, uploads attachments and
// writes the sub-record. Nothing is written when any upload fails, and
// uploaded objects are removed again.
func (s *Service) createSubRecord(ctx context.Context, identity *auth.Identity, recordID, acting string, kind Kind,
	sub *SubRecord, check *ValidationResult, uploads []Upload, value interface{}) error {
	op, rec, err := s.load(ctx, identity, recordID)
	if err != nil {
		return err
	}
	if err := s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, recordID, access.Authorize(op.StructureIDs, rec.CanBeAccessedBy, access.Write)); err != nil {
		return err
	}
	if err := check.Err(); err != nil {
		return err
	}
	acting, err = s.actingStructure(ctx, op, rec, acting, recordID)
	if err != nil {
		return err
	}

	sub.ID = uuid.NewString()
	sub.AnagraficaID = recordID
	sub.CreatedBy = op.SubjectID
	sub.CreatedByEmail = identity.Email
	sub.CreatedByStructure = acting
	sub.CreatedAt = s.now().UTC()
	sub.StructureIDs = rec.CanBeAccessedBy
	if sub.Sottocategorie == nil {
		sub.Sottocategorie = []string{}
	}

	files, err := s.upload(ctx, recordID, kind, sub.ID, uploads)
	if err != nil {
		return err
	}
	sub.Files = files

	data, err := json.Marshal(value)
	if err != nil {
		s.discard(ctx, files)
		return fmt.Errorf("failed to encode %s: %w", kind.folder, err)
	}
	doc := &storage.Document{
		Collection: kind.collection,
		ID:         sub.ID,
		ParentID:   recordID,
		Data:       data,
		Structures: rec.CanBeAccessedBy,
		CreatedAt:  sub.CreatedAt,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		s.discard(ctx, files)
		return fmt.Errorf("failed to store %s: %w", kind.folder, err)
	}

	s.auditMutation(ctx, kind.event, op.SubjectID, kind.resource, sub.ID,
		&audit.ChangeDetails{After: map[string]interface{}{"anagraficaId": recordID, "files": len(files)}},
		kind.folder+" created")
	return nil
}

// upload stores every attachment in parallel. On failure the objects that
// made it are deleted before returning.
func (s *Service) upload(ctx context.Context, recordID string, kind Kind, subID string, uploads []Upload) ([]Attachment, error) {
	files := make([]Attachment, 0, len(uploads))
	if len(uploads) == 0 {
		return files, nil
	}
	if s.objects == nil {
		return nil, apperr.New(apperr.KindUpstreamUnavailable, "attachment storage is not configured")
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploadConcurrency)
	for _, u := range uploads {
		u := u
		g.Go(func() error {
			key := AttachmentKey(recordID, kind, subID, u.Name)
			contentType := u.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}

			content, err := u.Open()
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", u.Name, err)
			}
			defer content.Close()

			if err := s.objects.PutObject(gctx, key, content, contentType); err != nil {
				return apperr.Wrap(apperr.KindUpstreamUnavailable, fmt.Errorf("failed to upload %s: %w", u.Name, err))
			}

			mu.Lock()
			files = append(files, Attachment{Name: u.Name, ContentType: contentType, Size: u.Size, Path: key})
			mu.Unlock()
			s.uploads.Add(gctx, 1, otelmetric.WithAttributes(attribute.String("kind", kind.folder)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.discard(ctx, files)
		return nil, err
	}

	// keep the submitted order
	byName := make(map[string]Attachment, len(files))
	for _, f := range files {
		byName[f.Name] = f
	}
	ordered := make([]Attachment, 0, len(uploads))
	for _, u := range uploads {
		ordered = append(ordered, byName[u.Name])
	}
	return ordered, nil
}

// discard deletes uploaded objects, even when ctx is already cancelled
func (s *Service) discard(ctx context.Context, files []Attachment) {
	if len(files) == 0 || s.objects == nil {
		return
	}
	cleanupCtx := context.WithoutCancel(ctx)
	for _, f := range files {
		if err := s.objects.DeleteObject(cleanupCtx, f.Path); err != nil {
			observability.FromContext(ctx).WithError(err).WithField("object_key", f.Path).Error("Failed to remove orphaned attachment")
		}
	}
}

// readable loads the parent record and checks read access
func (s *Service) readable(ctx context.Context, identity *auth.Identity, recordID string) error {
	op, rec, err := s.load(ctx, identity, recordID)
	if err != nil {
		return err
	}
	return s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, recordID, access.Authorize(op.StructureIDs, rec.CanBeAccessedBy, access.Read))
}

// ListAccesses returns the accesses of a record the operator may read
func (s *Service) ListAccesses(ctx context.Context, identity *auth.Identity, recordID string) ([]*Access, error) {
	if err := s.readable(ctx, identity, recordID); err != nil {
		return nil, err
	}
	docs, err := s.store.ListByParent(ctx, storage.CollectionAccessi, recordID)
	if err != nil {
		return nil, err
	}
	out := make([]*Access, 0, len(docs))
	for _, doc := range docs {
		var a Access
		if err := decodeSubRecord(doc, &a, &a.SubRecord); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, nil
}

// ListEvents returns the events of a record the operator may read
func (s *Service) ListEvents(ctx context.Context, identity *auth.Identity, recordID string) ([]*Event, error) {
	if err := s.readable(ctx, identity, recordID); err != nil {
		return nil, err
	}
	docs, err := s.store.ListByParent(ctx, storage.CollectionEventi, recordID)
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(docs))
	for _, doc := range docs {
		var e Event
		if err := decodeSubRecord(doc, &e, &e.SubRecord); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, nil
}

// OpenAttachment streams an attachment of a sub-record. The caller closes
// the returned reader.
func (s *Service) OpenAttachment(ctx context.Context, identity *auth.Identity, recordID string, kind Kind, subID, name string) (io.ReadCloser, *Attachment, error) {
	if err := s.readable(ctx, identity, recordID); err != nil {
		return nil, nil, err
	}
	if s.objects == nil {
		return nil, nil, apperr.New(apperr.KindNotFound, "attachment storage is not configured")
	}

	doc, err := s.store.Get(ctx, kind.collection, subID)
	if err != nil {
		return nil, nil, err
	}
	var sub SubRecord
	if err := decodeSubRecord(doc, &sub, &sub); err != nil {
		return nil, nil, err
	}
	if sub.AnagraficaID != recordID {
		return nil, nil, apperr.New(apperr.KindNotFound, kind.folder+" "+subID+" belongs to another record")
	}

	for _, f := range sub.Files {
		if f.Name != name {
			continue
		}
		content, err := s.objects.GetObject(ctx, f.Path)
		if err != nil {
			return nil, nil, err
		}
		file := f
		return content, &file, nil
	}
	return nil, nil, apperr.New(apperr.KindNotFound, "attachment "+name+" not found")
}

func decodeSubRecord(doc *storage.Document, target interface{}, sub *SubRecord) error {
	if err := json.Unmarshal(doc.Data, target); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", doc.Collection, doc.ID, err)
	}
	sub.ID = doc.ID
	if sub.AnagraficaID == "" {
		sub.AnagraficaID = doc.ParentID
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = doc.CreatedAt
	}
	return nil
}
