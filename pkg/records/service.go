package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/platinummonkey/casedesk/pkg/access"
	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/audit"
	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/operators"
	"github.com/platinummonkey/casedesk/pkg/storage"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

// DefaultUploadConcurrency bounds parallel attachment uploads per request
const DefaultUploadConcurrency = 4

// OperatorResolver looks up the operator behind a verified identity
type OperatorResolver interface {
	Resolve(ctx context.Context, subjectID string) (*operators.Operator, error)
}

// Options configures a Service
type Options struct {
	// Objects stores attachments. Sub-records without files work without it.
	Objects           storage.ObjectStore
	Metrics           *observability.Metrics
	UploadConcurrency int
	Now               func() time.Time
}

// Service implements record operations behind the structure guard
type Service struct {
	store             storage.DocumentStore
	operators         OperatorResolver
	objects           storage.ObjectStore
	metrics           *observability.Metrics
	uploadConcurrency int
	uploads           otelmetric.Int64Counter
	now               func() time.Time
}

// NewService creates a record service
func NewService(store storage.DocumentStore, resolver OperatorResolver, opts Options) *Service {
	s := &Service{
		store:             store,
		operators:         resolver,
		objects:           opts.Objects,
		metrics:           opts.Metrics,
		uploadConcurrency: opts.UploadConcurrency,
		now:               opts.Now,
	}
	if s.uploadConcurrency <= 0 {
		s.uploadConcurrency = DefaultUploadConcurrency
	}
	if s.now == nil {
		s.now = time.Now
	}
	counter, err := observability.Meter().Int64Counter("casedesk.attachments.uploaded",
		otelmetric.WithDescription("Attachments stored for access and event sub-records"),
		otelmetric.WithUnit("{file}"),
	)
	if err != nil {
		observability.FromContext(context.Background()).WithError(err).Warn("Attachment counter unavailable")
		counter = noop.Int64Counter{}
	}
	s.uploads = counter
	return s
}

func (s *Service) operator(ctx context.Context, identity *auth.Identity) (*operators.Operator, error) {
	if identity == nil || identity.SubjectID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	return s.operators.Resolve(ctx, identity.SubjectID)
}

// record loads a live record. Soft-deleted records are not found.
func (s *Service) record(ctx context.Context, id string) (*Anagrafica, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.New(apperr.KindNotFound, "empty record id")
	}
	doc, err := s.store.Get(ctx, storage.CollectionAnagrafica, id)
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(doc)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted() {
		return nil, apperr.New(apperr.KindNotFound, "record "+id+" is deleted")
	}
	return rec, nil
}

// load resolves the operator and then the record, so a missing operator or
// record is reported before any structure decision
func (s *Service) load(ctx context.Context, identity *auth.Identity, id string) (*operators.Operator, *Anagrafica, error) {
	op, err := s.operator(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.record(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return op, rec, nil
}

// enforce records the decision and turns a denial into a Forbidden error
func (s *Service) enforce(ctx context.Context, subjectID string, resource audit.ResourceType, resourceID string, d access.Decision) error {
	s.metrics.ObserveDecision(string(d.Operation), d.Allowed)
	if d.Allowed {
		return nil
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"operation":   string(d.Operation),
		"resource_id": resourceID,
		"reason":      d.Reason,
	}).Warn("Access denied")

	if err := audit.FromContext(ctx).LogAuthorization(ctx, audit.EventTypeAuthzAccessDenied, subjectID,
		resource, resourceID, audit.EventStatusDenied, string(d.Operation)+": "+d.Reason); err != nil {
		observability.FromContext(ctx).WithError(err).Error("Failed to write audit event")
	}
	return d.Err()
}

func (s *Service) auditMutation(ctx context.Context, event audit.EventType, subjectID string, resource audit.ResourceType, id string, changes *audit.ChangeDetails, message string) {
	if err := audit.FromContext(ctx).LogDataMutation(ctx, event, subjectID, resource, id, changes, message); err != nil {
		observability.FromContext(ctx).WithError(err).Error("Failed to write audit event")
	}
}

// Get returns a record the operator may read
func (s *Service) Get(ctx context.Context, identity *auth.Identity, id string) (*Anagrafica, error) {
	op, rec, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if err := s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, id, access.Authorize(op.StructureIDs, rec.CanBeAccessedBy, access.Read)); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create files a new record under the acting structure. When acting is
// empty, input.RegisteredBy is used, and an operator with a single
// structure acts for it implicitly.
func (s *Service) Create(ctx context.Context, identity *auth.Identity, acting string, input *Input) (*Anagrafica, error) {
	op, err := s.operator(ctx, identity)
	if err != nil {
		return nil, err
	}
	if input == nil {
		return nil, apperr.Validation("request body is empty")
	}

	acting = strings.TrimSpace(acting)
	if acting == "" {
		acting = strings.TrimSpace(input.RegisteredBy)
	}
	if acting == "" && op.StructureIDs.Len() == 1 {
		acting = op.StructureIDs.Slice()[0]
	}
	if acting == "" && op.CanCreate() {
		return nil, apperr.Validation("structureId is required")
	}

	authorized, decision := access.AuthorizeCreate(op.StructureIDs, acting, input.CanBeAccessedBy)
	if err := s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, "", decision); err != nil {
		return nil, err
	}

	rec := input.record()
	if err := validateRecord(rec).Err(); err != nil {
		return nil, err
	}

	rec.ID = uuid.NewString()
	rec.CanBeAccessedBy = authorized
	rec.RegisteredBy = acting
	rec.CreatedBy = op.SubjectID
	rec.CreatedByEmail = identity.Email
	rec.CreatedAt = s.now().UTC()

	doc, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}

	s.auditMutation(ctx, audit.EventTypeDataRecordCreate, op.SubjectID, audit.ResourceTypeRecord, rec.ID,
		&audit.ChangeDetails{After: map[string]interface{}{"canBeAccessedBy": authorized.Slice(), "registeredBy": acting}},
		"record created")
	return rec, nil
}

// Update applies patch to a record. The decision is taken on the stored
// set before anything in patch is looked at, and a canBeAccessedBy change
// must additionally pass access.AuthorizeChange.
func (s *Service) Update(ctx context.Context, identity *auth.Identity, id, acting string, patch Patch) (*Anagrafica, error) {
	op, current, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if err := s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, id, access.Authorize(op.StructureIDs, current.CanBeAccessedBy, access.Write)); err != nil {
		return nil, err
	}

	if err := patch.check().Err(); err != nil {
		return nil, err
	}

	proposed, changing, err := patch.proposedStructures()
	if err != nil {
		return nil, apperr.Validation("canBeAccessedBy: must be a list of structure ids")
	}
	if changing {
		if err := s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, id, access.AuthorizeChange(op.StructureIDs, current.CanBeAccessedBy, proposed)); err != nil {
			return nil, err
		}
	}

	acting, err = s.actingStructure(ctx, op, current, acting, id)
	if err != nil {
		return nil, err
	}

	next, err := patch.apply(current)
	if err != nil {
		return nil, apperr.Validation("malformed update: " + err.Error())
	}
	if err := validateRecord(next).Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next.ID = current.ID
	next.CanBeAccessedBy = current.CanBeAccessedBy
	if changing {
		next.CanBeAccessedBy = proposed
	}
	next.UpdatedBy = op.SubjectID
	next.UpdatedByEmail = identity.Email
	next.UpdatedByStructure = acting
	next.UpdatedAt = &now

	doc, err := encodeRecord(next)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}

	changes := &audit.ChangeDetails{After: map[string]interface{}{"fields": patch.Fields()}}
	if changing {
		changes.Before = map[string]interface{}{"canBeAccessedBy": current.CanBeAccessedBy.Slice()}
		changes.After["canBeAccessedBy"] = proposed.Slice()
	}
	s.auditMutation(ctx, audit.EventTypeDataRecordUpdate, op.SubjectID, audit.ResourceTypeRecord, id, changes, "record updated")
	return next, nil
}

// Delete soft deletes a record
func (s *Service) Delete(ctx context.Context, identity *auth.Identity, id string) error {
	op, rec, err := s.load(ctx, identity, id)
	if err != nil {
		return err
	}
	if err := s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, id, access.Authorize(op.StructureIDs, rec.CanBeAccessedBy, access.Delete)); err != nil {
		return err
	}

	now := s.now().UTC()
	rec.Deleted = true
	rec.DeletedAt = &now
	rec.DeletedBy = op.SubjectID

	doc, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, doc); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	s.auditMutation(ctx, audit.EventTypeDataRecordDelete, op.SubjectID, audit.ResourceTypeRecord, id, nil, "record deleted")
	return nil
}

// ListByStructure returns the live records authorized for structureID.
// The operator must belong to that structure.
func (s *Service) ListByStructure(ctx context.Context, identity *auth.Identity, structureID string) ([]*Anagrafica, error) {
	op, err := s.operator(ctx, identity)
	if err != nil {
		return nil, err
	}
	structureID = strings.TrimSpace(structureID)
	if structureID == "" {
		return nil, apperr.Validation("structureId is required")
	}
	if err := s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, "structure:"+structureID,
		access.Authorize(op.StructureIDs, structures.New(structureID), access.Read)); err != nil {
		return nil, err
	}

	docs, err := s.store.ListByStructure(ctx, storage.CollectionAnagrafica, structureID)
	if err != nil {
		return nil, err
	}
	out := make([]*Anagrafica, 0, len(docs))
	for _, doc := range docs {
		rec, err := decodeRecord(doc)
		if err != nil {
			observability.FromContext(ctx).WithError(err).WithField("record_id", doc.ID).Warn("Skipping undecodable record")
			continue
		}
		// the index may lag behind the document for legacy records
		if rec.IsDeleted() || !rec.CanBeAccessedBy.Contains(structureID) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// actingStructure validates an explicit acting structure or picks the first
// structure shared by the operator and the record
func (s *Service) actingStructure(ctx context.Context, op *operators.Operator, rec *Anagrafica, acting, resourceID string) (string, error) {
	acting = strings.TrimSpace(acting)
	if acting != "" {
		if !op.StructureIDs.Contains(acting) {
			d := access.Decision{Operation: access.Write, Reason: "acting structure not assigned to operator"}
			return "", s.enforce(ctx, op.SubjectID, audit.ResourceTypeRecord, resourceID, d)
		}
		return acting, nil
	}
	for _, id := range op.StructureIDs.Slice() {
		if rec.CanBeAccessedBy.Contains(id) {
			return id, nil
		}
	}
	return "", apperr.ErrForbidden
}

// NormalizeLegacy rewrites records that store their structures under the
// legacy structureIds field. It returns the number of records rewritten.
func (s *Service) NormalizeLegacy(ctx context.Context) (int, error) {
	docs, err := s.store.List(ctx, storage.CollectionAnagrafica)
	if err != nil {
		return 0, err
	}
	rewritten := 0
	for _, doc := range docs {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(doc.Data, &raw); err != nil {
			observability.FromContext(ctx).WithError(err).WithField("record_id", doc.ID).Warn("Skipping undecodable record")
			continue
		}
		if !structures.IsLegacy(raw, structures.RecordFields...) {
			continue
		}
		rec, err := decodeRecord(doc)
		if err != nil {
			return rewritten, err
		}
		out, err := encodeRecord(rec)
		if err != nil {
			return rewritten, err
		}
		if err := s.store.Put(ctx, out); err != nil {
			return rewritten, fmt.Errorf("failed to rewrite record %s: %w", doc.ID, err)
		}
		rewritten++
	}
	return rewritten, nil
}

func decodeRecord(doc *storage.Document) (*Anagrafica, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(doc.Data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", doc.ID, err)
	}
	var rec Anagrafica
	if err := json.Unmarshal(doc.Data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", doc.ID, err)
	}
	rec.ID = doc.ID
	rec.CanBeAccessedBy = structures.Normalize(raw, structures.RecordFields...)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = doc.CreatedAt
	}
	return &rec, nil
}

func encodeRecord(rec *Anagrafica) (*storage.Document, error) {
	if rec.CanBeAccessedBy.IsEmpty() {
		return nil, errors.New("record without authorized structures")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return &storage.Document{
		Collection: storage.CollectionAnagrafica,
		ID:         rec.ID,
		Data:       data,
		Structures: rec.CanBeAccessedBy,
		CreatedAt:  rec.CreatedAt,
	}, nil
}
