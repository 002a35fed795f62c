package producer

import "errors"

// ErrMissingResult is returned by a step that needs a result and got an
// ignored-inactive outcome.
var ErrMissingResult = errors.New("outcome has no result")
