// Package oauth lets players sign in to a CTF platform through an external
// OAuth identity provider.
//
// A Registry holds the login providers configured at startup. Handler serves
// two endpoints: LoginPath redirects the browser to the active provider with
// the session nonce as state, and CallbackPath checks that state before the
// provider exchanges the code, provisions the local user and team, and the
// host's Sessions establishes the login.
//
// The MLC provider lives in providers/mlc; storage/sqlite and storage/memory
// implement the repository it writes to.
package oauth
