package output

import "errors"

// ErrClosed is returned when writing through a closed FileWriter.
var ErrClosed = errors.New("file writer closed")
