// Package vault implements the team-scoped secret store: filtered reads
// through a per-team cache with sliding expiration, validated batch writes,
// and best-effort dual deletion against the backend and the settings-store
// projection.
package vault
