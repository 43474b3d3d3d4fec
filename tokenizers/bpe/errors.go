package bpe

import (
	"fmt"

	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned when a trainer is asked for an impossible vocabulary, e.g. one smaller
	// than the 256 byte tokens.
	ErrConfiguration = errors.New("invalid tokenizer configuration")

	// ErrInvalidToken is returned when decoding an id that has no vocabulary entry.
	ErrInvalidToken = errors.New("invalid token id")

	// ErrCorruptVocabulary is returned when an imported vocabulary breaks the ordering or operand rules.
	ErrCorruptVocabulary = errors.New("corrupt vocabulary")
)

// InvalidTokenError reports the token id that could not be decoded and its position in the input.
// It matches ErrInvalidToken with errors.Is.
type InvalidTokenError struct {
	ID       api.TokenID
	Position int
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("%v: id %d at position %d", ErrInvalidToken, e.ID, e.Position)
}

// Is implements the errors.Is interface.
func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}
