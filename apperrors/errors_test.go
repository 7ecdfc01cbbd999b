package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Newf(CodeNotReady, "asset %s", "a1").With("missing", "CD document")
	wrapped := fmt.Errorf("tokenize: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotReady))
	assert.False(t, errors.Is(wrapped, ErrAlreadyTokenized))
	assert.Equal(t, CodeNotReady, GetCode(wrapped))
	assert.Equal(t, "CD document", GetMetadata(wrapped)["missing"])
}

func TestWithDoesNotMutateSentinel(t *testing.T) {
	_ = ErrNotApproved.With("asset_id", "x")
	assert.Nil(t, ErrNotApproved.Metadata)
}

func TestRetryableForCollaboratorAndInternalFailures(t *testing.T) {
	cause := errors.New("rpc timeout")
	assert.True(t, Retryable(Wrap(CodeCollaboratorUnavailable, "mint", cause)))
	assert.True(t, Retryable(Wrap(CodeInternal, "mint confirmado mas token não foi gravado", cause)))
	assert.False(t, Retryable(ErrAlreadyBurned))
	assert.False(t, Retryable(ErrNotReady))
	assert.False(t, Retryable(cause))
	assert.ErrorIs(t, Wrap(CodeCollaboratorUnavailable, "mint", cause), cause)
}

func TestCodeKindsAndHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		kind   Kind
		status int
	}{
		{CodeUnknownDocumentKind, KindValidation, http.StatusBadRequest},
		{CodeRoleNotApplicable, KindValidation, http.StatusBadRequest},
		{CodeNotFound, KindNotFound, http.StatusNotFound},
		{CodeAlreadyTokenized, KindPrecondition, http.StatusConflict},
		{CodeTokenNotInWarehouseCustody, KindPrecondition, http.StatusConflict},
		{CodeCollaboratorUnavailable, KindUnavailable, http.StatusServiceUnavailable},
		{CodeUnknown, KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.code.Kind())
			assert.Equal(t, tt.status, tt.code.HTTPStatus())
		})
	}
}
