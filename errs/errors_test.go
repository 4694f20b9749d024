package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind and message",
			err:  New(ErrKindInvalidInput, "missing url"),
			want: "[invalid_input] missing url",
		},
		{
			name: "with entity",
			err:  Declaration("public.users", "duplicate table"),
			want: "[declaration] public.users: duplicate table",
		},
		{
			name: "with cause",
			err:  Introspection("query columns", errors.New("boom")),
			want: "[introspection] query columns: boom",
		},
		{
			name: "with cycle",
			err:  Planning("unbreakable cycle", []string{"a", "b", "a"}),
			want: "[planning] unbreakable cycle (cycle: a -> b -> a)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPredicates(t *testing.T) {
	cause := errors.New("driver")
	wrapped := fmt.Errorf("stage: %w", Wrap(ErrKindQueryFailed, "exec", cause))

	assert.True(t, IsQueryFailed(wrapped))
	assert.False(t, IsPlanning(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	assert.True(t, IsDeclaration(Declaration("t", "x")))
	assert.True(t, IsDiffInconsistency(DiffInconsistency("t", "x")))
	assert.True(t, IsIntrospection(Introspection("x", nil)))
	assert.True(t, IsConnectionFailed(New(ErrKindConnectionFailed, "x")))
	assert.True(t, IsInvalidInput(Newf(ErrKindInvalidInput, "bad %d", 1)))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "unknown", ErrKindUnknown.String())
}
