package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", New(ErrKindNotFound, "x"), IsNotFound},
		{"conflict", New(ErrKindConflict, "x"), IsConflict},
		{"type mismatch", New(ErrKindTypeMismatch, "x"), IsTypeMismatch},
		{"unknown field", New(ErrKindUnknownField, "x"), IsUnknownField},
		{"missing id", New(ErrKindMissingID, "x"), IsMissingID},
		{"timeout", Wrap(ErrKindTimeout, "x", errors.New("deadline")), IsTimeout},
		{"wrapped twice", fmt.Errorf("outer: %w", New(ErrKindQueryFailed, "x")), IsQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("boom")))
	assert.False(t, IsNotFound(nil))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("driver said no")
	err := Wrap(ErrKindConflict, "foreign key violation", cause)

	assert.Equal(t, "[conflict] foreign key violation: driver said no", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[missing_id] update needs a primary key", New(ErrKindMissingID, "update needs a primary key").Error())
}

func TestValidationError(t *testing.T) {
	err := Validation("value exceeds max length 5", "VARCHAR(5)", "toolong")
	wrapped := fmt.Errorf("saving: %w", err)

	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsValidation(New(ErrKindInvalidInput, "x")))

	var v *ValidationError
	assert.True(t, errors.As(wrapped, &v))
	assert.Equal(t, "VARCHAR(5)", v.FieldType)
	assert.Equal(t, "toolong", v.Value)
}
