// Package token defines the refresh token record model, its lifecycle
// states, and the Store contract the rotation engine runs against.
//
// The package also ships the in-memory reference store. Production
// deployments use the Redis implementation in token/redis or the
// Postgres implementation in token/postgres.
package token
