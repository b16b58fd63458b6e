// Package outbox publishes durably staged messages. Producers insert
// rows inside the caller's transaction; the polling worker drains them
// to the broker and deletes what it published.
package outbox

import (
	"github.com/cespare/xxhash/v2"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// ownerBuckets is the fixed bucket space rows are hashed into at insert
// time. Workers partition over it with a modulo, so the worker count
// can change without rewriting rows.
const ownerBuckets = 256

// Owner hashes the aggregate id into its ownership bucket. Rows without
// an aggregate id carry no owner and fall to worker index 0.
func Owner(aggregateID string) *int {
	if aggregateID == "" {
		return nil
	}
	owner := int(xxhash.Sum64String(aggregateID) % ownerBuckets)
	return &owner
}

// SingleNode selects every row, for deployments with one worker.
func SingleNode() contracts.OwnershipFilter {
	return contracts.OwnershipFilter{}
}

// Partitioned scopes a worker to its share of the bucket space. All
// workers of a deployment must agree on buckets and hold distinct
// indexes.
func Partitioned(buckets, index int) contracts.OwnershipFilter {
	return contracts.OwnershipFilter{Buckets: buckets, Index: index}
}
