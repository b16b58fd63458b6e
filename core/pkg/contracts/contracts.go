// Package contracts berisi semua generic interfaces untuk relay.
// User hanya perlu interact dengan interface ini, bukan implementation:
// broker, database, outbox/inbox stores, logger, metrics, dan tracer
// semuanya dapat diganti lewat driver di contrib/.
package contracts
