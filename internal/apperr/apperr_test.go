// ABOUTME: Tests for the application error taxonomy
// ABOUTME: Verifies code extraction, wrapping, and HTTP status mapping

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidArgument, CodeOf(Invalid("empty content")))
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("no such message")))
	assert.Equal(t, CodePermissionDenied, CodeOf(Forbidden("not a participant")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain error")))
}

func TestCodeOf_Wrapped(t *testing.T) {
	inner := NotFound("message not found")
	outer := fmt.Errorf("marking read: %w", inner)
	assert.Equal(t, CodeNotFound, CodeOf(outer))
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeInternal, "saving message", cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "saving message")
	assert.Contains(t, err.Error(), "disk full")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeInvalidArgument))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(CodePermissionDenied))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeAlreadyExists))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
}
