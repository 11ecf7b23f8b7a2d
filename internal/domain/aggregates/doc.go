// Package aggregates defines domain-facing aggregate contracts.
//
// Contracts avoid persistence details and mark the write boundaries where
// credit and match invariants must hold atomically.
package aggregates
