// Package store provides the tombstone-aware, transactional record store
// used by the cascade engine.
//
// Records are never physically removed by callers. Each kind is accessed
// through a typed [Collection] whose reads exclude tombstoned records unless
// a [Visibility] other than [Live] is requested, and whose Delete always
// fails with [ErrDirectDeletionForbidden]. State changes happen through
// [Collection.SoftDelete] and [Collection.Restore].
//
// # Backends
//
// A [Backend] hands out [Tx] values. Reads inside a transaction observe its
// own buffered writes, and Commit applies every write or none:
//
//   - [MemoryBackend] keeps records in process with snapshot isolation.
//   - [DynamoBackend] keeps every kind in one DynamoDB table with a scope
//     GSI and a sharded parent GSI, and commits with TransactWriteItems.
//
// Both detect conflicting commits with an optimistic version per record and
// enforce unique fields among live records only.
//
// # Retention
//
// Tombstoning stamps a ttl attribute of deletedAt plus the kind's retention
// window; restoring clears it. DynamoDB TTL (or [MemoryBackend.PurgeExpired])
// then purges expired records, and [PurgeOrphans] removes the tombstoned
// children they leave behind.
//
// # Errors
//
//   - [ErrNotFound] - record doesn't exist or is hidden by visibility
//   - [ErrAlreadyExists] - insert of an existing record
//   - [ErrConcurrentModification] - optimistic lock failed at commit
//   - [ErrDuplicateValue] - unique constraint violated at commit
//   - [ErrDirectDeletionForbidden] - physical delete attempted
//   - [ErrTransactionTooLarge] - commit exceeds the backend item limit
//   - [ErrTxDone] - transaction already committed or rolled back
package store
