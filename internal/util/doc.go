// Package util holds small string helpers shared by the provider and the
// command line.
package util
