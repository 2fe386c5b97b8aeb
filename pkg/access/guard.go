// Package access implements the structure-scoped authorization decision.
//
// Every decision is a pure function over two structure sets: the operator's
// and the record's. Callers fetch both sets fresh for each request; nothing
// here caches.
package access

import (
	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

// Operation is the kind of access being requested on a record.
type Operation string

const (
	Read   Operation = "read"
	Write  Operation = "write"
	Delete Operation = "delete"
	Create Operation = "create"
)

// Decision is the outcome of an authorization check. Reason is for logs
// and audit only and must never be sent to clients.
type Decision struct {
	Allowed   bool
	Operation Operation
	Reason    string
}

// Err converts a denial into a Forbidden error. It returns nil when the
// decision allows the operation.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.New(apperr.KindForbidden, d.Reason)
}

func allow(op Operation, reason string) Decision {
	return Decision{Allowed: true, Operation: op, Reason: reason}
}

func deny(op Operation, reason string) Decision {
	return Decision{Allowed: false, Operation: op, Reason: reason}
}

// Authorize allows op when the operator shares at least one structure with
// the record. For Write and Delete, record must be the set stored before
// the mutation is applied.
func Authorize(operator, record structures.Set, op Operation) Decision {
	switch {
	case operator.IsEmpty():
		return deny(op, "operator has no structures")
	case record.IsEmpty():
		return deny(op, "record has no authorized structures")
	case !operator.Intersects(record):
		return deny(op, "no shared structure")
	}
	return allow(op, "shared structure")
}

// AuthorizeCreate decides whether an operator may file a new record under
// acting, and computes the record's authorized structures. An empty
// requested set defaults to {acting}. A non-empty requested set is accepted
// only when the operator belongs to every structure in it; the acting
// structure is always part of the result. Requests naming a foreign
// structure are denied rather than silently narrowed.
func AuthorizeCreate(operator structures.Set, acting string, requested structures.Set) (structures.Set, Decision) {
	if operator.IsEmpty() {
		return structures.Set{}, deny(Create, "operator has no structures")
	}
	if !operator.Contains(acting) {
		return structures.Set{}, deny(Create, "acting structure not assigned to operator")
	}
	if !requested.SubsetOf(operator) {
		return structures.Set{}, deny(Create, "requested structures outside operator membership")
	}
	return requested.Union(structures.New(acting)), allow(Create, "acting structure assigned to operator")
}

// AuthorizeChange decides whether an operator may replace a record's
// authorized structures current with proposed. The operator needs write
// access under current. Structures can be removed freely, but every added
// structure must belong to the operator, and the result cannot be empty.
func AuthorizeChange(operator, current, proposed structures.Set) Decision {
	if d := Authorize(operator, current, Write); !d.Allowed {
		return d
	}
	if proposed.IsEmpty() {
		return deny(Write, "authorized structures cannot be emptied")
	}
	if !proposed.Difference(current).SubsetOf(operator) {
		return deny(Write, "cannot grant access to foreign structure")
	}
	return allow(Write, "change within operator membership")
}
