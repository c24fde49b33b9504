package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_DocChatErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"locked index", dcerrors.New(dcerrors.ErrCodeIndexLocked, "index is in use", nil), ErrCodeIndexUnavailable},
		{"corrupt index", dcerrors.New(dcerrors.ErrCodeCorruptIndex, "corrupt", nil), ErrCodeIndexUnavailable},
		{"embedding", dcerrors.New(dcerrors.ErrCodeEmbeddingFailed, "embed failed", nil), ErrCodeEmbeddingFailed},
		{"validation", dcerrors.New(dcerrors.ErrCodeInvalidInput, "empty query", nil), ErrCodeInvalidParams},
		{"network", dcerrors.New(dcerrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"storage", dcerrors.New(dcerrors.ErrCodeStorageFailed, "disk", nil), ErrCodeInternalError},
		{"wrapped", fmt.Errorf("outer: %w", dcerrors.New(dcerrors.ErrCodeMessageEmpty, "empty message", nil)), ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := dcerrors.New(dcerrors.ErrCodeIndexLocked, "index is in use", nil).
		WithSuggestion("Stop the other docchat process.")

	got := MapError(err)

	assert.Equal(t, "index is in use Stop the other docchat process.", got.Message)
}

func TestMapError_Context(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, MapError(context.DeadlineExceeded).Code)
	assert.Equal(t, "Request was canceled.", MapError(context.Canceled).Message)
}

func TestMapError_Unknown(t *testing.T) {
	got := MapError(errors.New("boom"))
	assert.Equal(t, ErrCodeInternalError, got.Code)
	assert.Equal(t, "Internal server error.", got.Message)
}

func TestMapError_PassesMCPErrorThrough(t *testing.T) {
	in := NewInvalidParamsError("bad")
	assert.Same(t, in, MapError(fmt.Errorf("wrap: %w", in)))
}

func TestMCPError_Error(t *testing.T) {
	assert.Equal(t, "MCP error -32601: Tool 'nope' not found.", NewMethodNotFoundError("nope").Error())
}
