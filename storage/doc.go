// Package storage defines the persistence collaborator used by login providers.
//
// The package describes the records a provider reads and writes while it
// provisions or links an account:
//   - User: a local account, matched by email and linked by OAuthID
//   - Team: an optional group of users with a captain, keyed by the provider's team id
//
// Providers only talk to the Store and SessionCache interfaces. Schema, query
// engine, and transaction handling belong to the implementations:
//   - storage/memory: in-memory store for development and tests
//   - storage/sqlite: SQLite store with embedded migrations
package storage
