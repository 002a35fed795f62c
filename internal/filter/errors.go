package filter

import "errors"

// ErrInvalidPattern is returned when the configured filter regex does not compile.
var ErrInvalidPattern = errors.New("invalid filter pattern")
