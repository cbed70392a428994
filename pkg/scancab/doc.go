// Package scancab provides the lifecycle and consistency core of a personal
// scanned-document library: media objects (uploaded scan pages), documents
// (ordered groupings of pages), and the per-user records that own them.
//
// It exposes a single Service interface whose mutating operations run as
// atomic transactions scoped to one owner's partition, preserving the
// bidirectional linkage between a Document's pages and each MediaObject's
// back-reference. Blob storage is deliberately outside those transactions;
// the Sweeper's reconciliation passes clean up the records and blobs that
// partial failures leave behind.
//
// Implementations of the entity store (memory, Postgres) and the blob store
// (memory, filesystem, S3) are provided under subpackages.
package scancab
