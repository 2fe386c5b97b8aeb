// Package operators resolves verified identities to operator profiles and
// their structure memberships.
package operators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/storage"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

// Operator is a directory entry keyed by subject id
type Operator struct {
	SubjectID    string         `json:"uid"`
	Email        string         `json:"email,omitempty"`
	DisplayName  string         `json:"displayName,omitempty"`
	StructureIDs structures.Set `json:"structureIds"`
	Admin        bool           `json:"admin,omitempty"`
	Disabled     bool           `json:"disabled,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// CanCreate reports whether the operator may file new records at all
func (o *Operator) CanCreate() bool {
	return !o.StructureIDs.IsEmpty()
}

// Directory is the operator directory backed by the document store
type Directory struct {
	store storage.DocumentStore
}

// NewDirectory creates a directory over store
func NewDirectory(store storage.DocumentStore) *Directory {
	return &Directory{store: store}
}

// Resolve returns the operator for subjectID. Missing and disabled
// operators both yield apperr.ErrNotFound.
func (d *Directory) Resolve(ctx context.Context, subjectID string) (*Operator, error) {
	op, err := d.get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if op.Disabled {
		return nil, apperr.New(apperr.KindNotFound, "operator "+subjectID+" is disabled")
	}
	return op, nil
}

func (d *Directory) get(ctx context.Context, subjectID string) (*Operator, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, apperr.New(apperr.KindNotFound, "empty operator id")
	}
	doc, err := d.store.Get(ctx, storage.CollectionOperators, subjectID)
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

// decode reads an operator document, accepting the legacy singular
// structureId field
func decode(doc *storage.Document) (*Operator, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(doc.Data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode operator %s: %w", doc.ID, err)
	}

	var op Operator
	if err := json.Unmarshal(doc.Data, &op); err != nil {
		return nil, fmt.Errorf("failed to decode operator %s: %w", doc.ID, err)
	}
	op.SubjectID = doc.ID
	op.StructureIDs = structures.Normalize(raw, structures.OperatorFields...)
	op.CreatedAt = doc.CreatedAt
	op.UpdatedAt = doc.UpdatedAt
	return &op, nil
}

func (d *Directory) document(op *Operator) (*storage.Document, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to encode operator: %w", err)
	}
	return &storage.Document{
		Collection: storage.CollectionOperators,
		ID:         op.SubjectID,
		Data:       data,
		Structures: op.StructureIDs,
		CreatedAt:  op.CreatedAt,
	}, nil
}

// update applies change to the latest stored operator and writes it back
// atomically, so concurrent edits of different fields are all kept
func (d *Directory) update(ctx context.Context, subjectID string, change func(*Operator) error) (*Operator, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, apperr.New(apperr.KindNotFound, "empty operator id")
	}
	doc, err := d.store.Update(ctx, storage.CollectionOperators, subjectID, func(doc *storage.Document) error {
		op, err := decode(doc)
		if err != nil {
			return err
		}
		if err := change(op); err != nil {
			return err
		}
		next, err := d.document(op)
		if err != nil {
			return err
		}
		doc.Data = next.Data
		doc.Structures = next.Structures
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

// EnsureProvisioned returns the operator for identity, creating a minimal
// profile with no structures when absent. An existing profile gets its
// email refreshed; structures and the disabled flag are never touched.
func (d *Directory) EnsureProvisioned(ctx context.Context, identity *auth.Identity) (*Operator, error) {
	if identity == nil || identity.SubjectID == "" {
		return nil, apperr.Validation("identity is required")
	}
	logger := observability.FromContext(ctx).WithField("subject_id", identity.SubjectID)

	op, err := d.get(ctx, identity.SubjectID)
	switch {
	case err == nil:
		if identity.Email == "" || identity.Email == op.Email {
			return op, nil
		}
		op, err = d.update(ctx, identity.SubjectID, func(op *Operator) error {
			op.Email = identity.Email
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to refresh operator email: %w", err)
		}
		return op, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	op = &Operator{
		SubjectID:    identity.SubjectID,
		Email:        identity.Email,
		StructureIDs: structures.New(),
	}
	doc, err := d.document(op)
	if err != nil {
		return nil, err
	}
	if err := d.store.Create(ctx, doc); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// concurrent first login
			return d.get(ctx, identity.SubjectID)
		}
		return nil, fmt.Errorf("failed to provision operator: %w", err)
	}

	logger.Info("Provisioned operator with no structures")
	return d.get(ctx, identity.SubjectID)
}

// Provision implements session.Provisioner
func (d *Directory) Provision(ctx context.Context, identity *auth.Identity) error {
	_, err := d.EnsureProvisioned(ctx, identity)
	return err
}

// SetStructures replaces the operator's structures. It is an
// administrative operation; callers check the admin flag.
func (d *Directory) SetStructures(ctx context.Context, subjectID string, set structures.Set) (*Operator, error) {
	op, err := d.update(ctx, subjectID, func(op *Operator) error {
		op.StructureIDs = set
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update operator structures: %w", err)
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"operator_id": subjectID,
		"structures":  set.String(),
	}).Info("Operator structures updated")

	return op, nil
}

// UpdateProfile changes the operator's display name
func (d *Directory) UpdateProfile(ctx context.Context, subjectID, displayName string) (*Operator, error) {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > 120 {
		return nil, apperr.Validation("displayName is too long")
	}
	op, err := d.update(ctx, subjectID, func(op *Operator) error {
		if op.Disabled {
			return apperr.New(apperr.KindNotFound, "operator "+subjectID+" is disabled")
		}
		op.DisplayName = displayName
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update operator profile: %w", err)
	}
	return op, nil
}

// SetDisabled enables or disables an operator. Disabled operators resolve
// as not found and lose access to every record.
func (d *Directory) SetDisabled(ctx context.Context, subjectID string, disabled bool) error {
	_, err := d.update(ctx, subjectID, func(op *Operator) error {
		op.Disabled = disabled
		return nil
	})
	return err
}

// NormalizeLegacy rewrites every operator stored with a legacy structure
// field in canonical form. It returns the number of documents rewritten.
func (d *Directory) NormalizeLegacy(ctx context.Context) (int, error) {
	docs, err := d.store.List(ctx, storage.CollectionOperators)
	if err != nil {
		return 0, err
	}
	rewritten := 0
	for _, doc := range docs {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(doc.Data, &raw); err != nil {
			observability.FromContext(ctx).WithError(err).WithField("operator_id", doc.ID).Warn("Skipping undecodable operator")
			continue
		}
		if !isLegacyOperator(raw) {
			continue
		}
		if _, err := d.update(ctx, doc.ID, func(*Operator) error { return nil }); err != nil {
			return rewritten, fmt.Errorf("failed to rewrite operator %s: %w", doc.ID, err)
		}
		rewritten++
	}
	return rewritten, nil
}

// isLegacyOperator reports whether structures live anywhere but a
// structureIds array
func isLegacyOperator(raw map[string]json.RawMessage) bool {
	if _, ok := raw[structures.FieldStructureID]; ok {
		return true
	}
	ids, ok := raw[structures.FieldStructureIDs]
	if !ok {
		return false
	}
	return !strings.HasPrefix(strings.TrimSpace(string(ids)), "[")
}
