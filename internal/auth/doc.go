// Package auth owns the bearer credential used against the remote analysis
// service.
//
// Manager caches the credential in memory and in a file-locked JSON store,
// refreshes it when the embedded expiry passes, and derives the pseudonymous
// identity the credential is issued for. DecodeSubject parses the credential's
// self-describing payload without a server round trip.
package auth
