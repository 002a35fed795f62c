// Package filter decides which subjects are never tested.
//
// Three rules are applied in order: reserved host names (localhost and
// friends), reserved IP ranges unless local-network testing is enabled, and
// an optional user regex that a subject must match to be kept.
package filter
