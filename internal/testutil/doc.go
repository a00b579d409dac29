// Package testutil provides testing utilities for the login providers, most
// notably a fake MLC authorization server.
package testutil
