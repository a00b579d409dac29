// Package sqlite provides the SQLite-backed user, team and settings store.
//
// The store implements storage.Store and settings.Source. Each mutating call
// runs as its own committed statement, so later steps of a login always see
// earlier writes. Schema changes ship as embedded migrations applied by Open.
package sqlite
