package tester

import "errors"

// ErrNoResult is returned when a checker returns neither a result nor an error.
var ErrNoResult = errors.New("checker returned no result")
