package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMatchesInvalidInput(t *testing.T) {
	err := fmt.Errorf("profile update: %w", NewValidationError("path", "unknown field"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "path", ve.Field)
}

func TestFetchError(t *testing.T) {
	tests := []struct {
		name string
		err  *FetchError
		want string
	}{
		{"with status", NewFetchError("https://a", 503, io.EOF), "fetch https://a: status 503: EOF"},
		{"without status", NewFetchError("https://b", 0, io.EOF), "fetch https://b: EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, io.EOF)
		})
	}
}

func TestWrapper(t *testing.T) {
	w := NewWrapper("index", "load")
	assert.Nil(t, w.Wrap(nil, "ignored"))

	err := w.Wrapf(ErrIndexNotBuilt, "index %s unavailable", "main")
	assert.ErrorIs(t, err, ErrIndexNotBuilt)
	assert.Equal(t, "[index:load] index main unavailable: document index not built yet", err.Error())
	assert.Equal(t, "index main unavailable", UserMessage(fmt.Errorf("outer: %w", err), "fallback"))
	assert.Equal(t, "fallback", UserMessage(io.EOF, "fallback"))
}
