// Package storage defines the persistence contracts: a document store for
// operators, records and sub-records, and an object store for attachments.
//
// Implementations live in pkg/storage/postgres (PostgreSQL, Redis, S3) and
// in this package (in-memory documents, local filesystem objects) for tests
// and development.
package storage
