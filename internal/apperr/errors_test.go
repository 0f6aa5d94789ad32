package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := NotFound("product %s not found", "p-1")
	assert.Equal(t, "product p-1 not found", err.Error())

	wrapped := Wrap(sql.ErrConnDone, CodeInternal, "load product")
	assert.Equal(t, "load product: "+sql.ErrConnDone.Error(), wrapped.Error())
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "noop"))
}

func TestError_IsComparesCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", Validation("quantity must be positive"))

	assert.True(t, errors.Is(err, New(CodeValidation, "anything")))
	assert.False(t, errors.Is(err, New(CodeNotFound, "anything")))
	assert.True(t, IsCode(err, CodeValidation))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	err := Internal(sql.ErrTxDone, "commit order")
	assert.True(t, errors.Is(err, sql.ErrTxDone))
}

func TestError_WithDetailsCopies(t *testing.T) {
	base := Validation("not enough stock")
	withDetails := base.WithDetails(map[string]any{"available": 5, "requested": 10})

	require.NotNil(t, withDetails)
	assert.Nil(t, base.Details)
	assert.Equal(t, 5, withDetails.Details["available"])
	assert.Equal(t, 10, withDetails.Details["requested"])
}

func TestError_HTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:     http.StatusNotFound,
		CodeValidation:   http.StatusBadRequest,
		CodeConflict:     http.StatusConflict,
		CodeUnauthorized: http.StatusUnauthorized,
		CodeForbidden:    http.StatusForbidden,
		CodePersistence:  http.StatusInternalServerError,
		CodeInternal:     http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, New(code, "x").HTTPStatus(), code)
	}
}
