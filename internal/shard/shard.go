// Package shard provides partition key generation for the records table
// indexes and the unique constraints table.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// ParentPK computes the sharded parent index partition key of a child record.
// With numShards=1, every child of an owner lands in shard "00".
// With numShards>1, children are spread across shards by childRef hash.
func ParentPK(parentRef, childRef string, numShards int) string {
	if numShards <= 1 {
		return fmt.Sprintf("%s#00", parentRef)
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	n := h.Sum32() % uint32(numShards)
	return fmt.Sprintf("%s#%02x", parentRef, n)
}

// ParentPKs lists every parent index partition key of an owner, one per shard.
func ParentPKs(parentRef string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	keys := make([]string, numShards)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s#%02x", parentRef, i)
	}
	return keys
}

// UniqueConstraintPK computes a hash-distributed partition key for a unique
// constraint so each constraint lands on its own partition.
func UniqueConstraintPK(scope, kind, field, value string) string {
	data := fmt.Sprintf("%s#%s#%s#%s", scope, kind, field, value)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:16])
}
