package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{ErrCodeIndexLocked, CategoryIO, SeverityWarning, true},
		{ErrCodeCompletionFailed, CategoryNetwork, SeverityWarning, true},
		{ErrCodeMessageEmpty, CategoryValidation, SeverityError, false},
		{ErrCodeModelMismatch, CategoryValidation, SeverityFatal, false},
		{ErrCodeEmbeddingFailed, CategoryInternal, SeverityError, false},
		{"BAD", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestDocChatError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := New(ErrCodeStorageFailed, "could not save chunk", cause)

	assert.Equal(t, "[ERR_208_STORAGE_FAILED] could not save chunk", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestDocChatError_IsMatchesByCode(t *testing.T) {
	// Given: an error wrapped twice with fmt.Errorf
	base := ValidationError("bad input", nil)
	wrapped := fmt.Errorf("handler: %w", fmt.Errorf("service: %w", base))

	// Then: errors.Is matches on code, not identity
	assert.ErrorIs(t, wrapped, New(ErrCodeInvalidInput, "other message", nil))
	assert.NotErrorIs(t, wrapped, New(ErrCodeInternal, "", nil))

	// And: helpers see through the wrapping
	assert.Equal(t, ErrCodeInvalidInput, GetCode(wrapped))
	assert.Equal(t, CategoryValidation, GetCategory(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeInvalidInput))
}

func TestHelpers_NonDocChatError(t *testing.T) {
	err := errors.New("plain")

	assert.Equal(t, "", GetCode(err))
	assert.Equal(t, Category(""), GetCategory(err))
	assert.False(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
	assert.False(t, IsRetryable(nil))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeModelMismatch, "index was built with another model", nil).
		WithDetail("index_model", "static-384").
		WithDetail("embedder_model", "all-MiniLM-L6-v2").
		WithSuggestion("remove the index directory and re-ingest")

	assert.Equal(t, "static-384", err.Details["index_model"])
	assert.Equal(t, "remove the index directory and re-ingest", err.Suggestion)
	assert.True(t, IsFatal(err))
}

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeIndexLocked, "index is locked by another process", nil).
		WithSuggestion("stop 'docchat serve' first")

	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: index is locked by another process")
	assert.Contains(t, out, "Hint: stop 'docchat serve' first")
	assert.Contains(t, out, "Code: ERR_207_INDEX_LOCKED")

	assert.Contains(t, FormatForCLI(errors.New("boom")), "Code: ERR_501_INTERNAL")
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	err := New(ErrCodeFileTooLarge, "upload exceeds 12 MB", errors.New("read limit")).
		WithDetail("file", "big.pdf")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeFileTooLarge, decoded["code"])
	assert.Equal(t, "IO", decoded["category"])
	assert.Equal(t, "read limit", decoded["cause"])
	assert.Equal(t, map[string]any{"file": "big.pdf"}, decoded["details"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(ErrCodeSearchFailed, "search failed", errors.New("dim")).WithDetail("k", "5"))

	keys := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	assert.Contains(t, keys, "error_code")
	assert.Contains(t, keys, "cause")
	assert.Contains(t, keys, "detail_k")

	plain := LogAttrs(errors.New("x"))
	require.Len(t, plain, 1)
	assert.Equal(t, "error", plain[0].Key)
	assert.Nil(t, LogAttrs(nil))
}
