package clext

import (
	"errors"
	"fmt"
)

// ErrShortBuffer matches any *SizeError via errors.Is.
var ErrShortBuffer = errors.New("descriptor buffer has wrong size")

// SizeError reports a buffer whose length does not match the descriptor.
type SizeError struct {
	Type string
	Want int
	Got  int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: want %d bytes, got %d", e.Type, e.Want, e.Got)
}

func (e *SizeError) Is(target error) bool {
	return target == ErrShortBuffer
}
