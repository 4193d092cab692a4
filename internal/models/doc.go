// Package models defines the value types of the ledger core.
//
// # Entities
//
//   - Amount: immutable money value with two fractional digits
//   - Account: balance holder, mutated only through Credit and Debit
//   - AccountAccess: a client's OWNER or MANAGER role on an account
//   - Client: account holder identified by username
//   - Credential: gateway login (banker or client)
//
// Relationships are expressed with identifiers (username, account id) rather
// than pointers, so values can be copied freely between the store and callers.
//
// # Errors
//
// Every core failure is an *Error with an ErrorKind. Compare with errors.Is
// against the Err* sentinels, or extract the kind with KindOf.
package models
