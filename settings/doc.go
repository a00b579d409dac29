// Package settings resolves the runtime configuration a login provider reads.
//
// Values come from three layers, checked in order:
//  1. deployment overrides, loaded once from the process environment (Overrides)
//  2. stored runtime settings, editable while the platform runs (Source)
//  3. a hardcoded default supplied by the caller
//
// An empty value at any layer counts as absent and falls through to the next.
// Nothing is cached: every lookup reads the stored layer again, so edits made by
// an administrator take effect on the next login.
package settings
