// Package checker holds the subject checkers and the table that selects one
// from a (subject type, checker type) pair.
//
// The table is fixed: SYNTAX, AVAILABILITY and REPUTATION, each for domains
// and URLs. Any other pair is a configuration error (ErrUnknownCheckerKind).
//
// Checkers never fail on network trouble. A timeout or an NXDOMAIN is a
// verdict ("down"), not an error. Errors are kept for misconfiguration.
package checker
