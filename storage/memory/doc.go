// Package memory provides an in-memory implementation of storage.Store and
// storage.SessionCache.
//
// Records live in maps guarded by a single mutex, so every write is visible to
// the next read as soon as the call returns. It is suitable for development,
// tests and single-instance deployments where persistence is not required.
//
// For persistent deployments use the storage/sqlite package instead.
//
// Example usage:
//
//	store := memory.New()
//	store.SetInstrumentation(inst)
//
//	provider, _ := mlc.NewProvider(&mlc.Config{Store: store, Sessions: store, ...})
package memory
