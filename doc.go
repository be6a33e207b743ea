// Package canteen contains the shared types and helpers used by the
// cafeteria order-processing services: the cache/pub-sub contracts backed by
// Redis, the order status state machine, the error taxonomy surfaced at the
// HTTP boundary, retry and task-runner helpers, and env-based configuration
// plumbing.
//
// Each service (identity, gateway, stock, kitchen, notifications) lives in
// its own package with a binary under cmd/. Services share a single Redis
// instance and keep their system-of-record tables in Cassandra keyspaces.
package canteen
