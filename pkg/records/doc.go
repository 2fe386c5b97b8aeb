// Package records implements the record service: personal records
// ("anagrafica") and their access and event sub-records.
//
// Every operation follows the same order. The operator is resolved first,
// then the target record is loaded, and only then does the structure guard
// decide. Missing or soft-deleted records are reported as not found before
// any structure check; mutations are applied only after an allow decision
// taken on the stored, pre-mutation structure set.
//
// Sub-records carry no access list of their own. They are always authorized
// through the parent record's current set.
package records
