package ckgerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := Wrap(StoreUnavailable, "upsert nodes", errors.New("connection refused"))
	assert.Equal(t, "[STORE_UNAVAILABLE] upsert nodes: connection refused", err.Error())

	plain := New(InvalidArgument, "project id is required")
	assert.Equal(t, "[INVALID_ARGUMENT] project id is required", plain.Error())
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(StoreUnavailable, "noop", nil))
}

func TestCodeOf_ThroughWrapping(t *testing.T) {
	base := Errorf(IndexCorruption, "edge %s references missing node", "e1")
	wrapped := fmt.Errorf("apply batch: %w", base)

	assert.Equal(t, IndexCorruption, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, IndexCorruption))
	assert.False(t, HasCode(wrapped, StoreUnavailable))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(EmbedderUnavailable, "embed", errors.New("503")))
	assert.True(t, errors.Is(err, New(EmbedderUnavailable, "")))
	assert.False(t, errors.Is(err, New(ParseFailed, "")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(StoreUnavailable, "write", cause)
	require.ErrorIs(t, err, cause)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"store", New(StoreUnavailable, "x"), true},
		{"embedder", New(EmbedderUnavailable, "x"), true},
		{"timeout", New(Timeout, "x"), true},
		{"parse", New(ParseFailed, "x"), false},
		{"corruption", New(IndexCorruption, "x"), false},
		{"plain", errors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
