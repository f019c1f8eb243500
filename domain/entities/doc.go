// Package entities provides the core domain types of the pseudo-kernel:
// the run manifest a host is configured with and the outcome of a guest
// invocation.
package entities
