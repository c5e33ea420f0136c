package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/interfaces/http/dto"
	"github.com/erp/crm/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestGetRequestID(t *testing.T) {
	c, _ := newTestContext()
	assert.Empty(t, getRequestID(c))

	c.Set(middleware.RequestIDKey, "ctx-request-id")
	assert.Equal(t, "ctx-request-id", getRequestID(c))
}

func TestBaseHandlerSuccessResponses(t *testing.T) {
	h := &BaseHandler{}

	t.Run("success", func(t *testing.T) {
		c, w := newTestContext()
		h.Success(c, map[string]string{"name": "Acme"})

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Error)
	})

	t.Run("list carries the total", func(t *testing.T) {
		c, w := newTestContext()
		h.SuccessList(c, []string{"a", "b"}, 2)

		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(2), resp.Meta.Total)
	})

	t.Run("created", func(t *testing.T) {
		c, w := newTestContext()
		h.Created(c, map[string]string{"id": "1"})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("no content", func(t *testing.T) {
		c, w := newTestContext()
		h.NoContent(c)
		c.Writer.WriteHeaderNow()
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("cascade", func(t *testing.T) {
		report := shared.NewCascadeReport("tag.delete")
		report.Ok("client-1")

		c, w := newTestContext()
		h.Cascade(c, nil, report)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Cascade)
		assert.Equal(t, "tag.delete", resp.Cascade.Operation)
		assert.Equal(t, []string{"client-1"}, resp.Cascade.Succeeded)
		assert.Empty(t, resp.Cascade.Failed)
	})
}

func TestBaseHandlerErrorMethods(t *testing.T) {
	h := &BaseHandler{}

	tests := []struct {
		name   string
		call   func(c *gin.Context)
		status int
		code   string
	}{
		{"bad request", func(c *gin.Context) { h.BadRequest(c, "bad") }, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"internal", func(c *gin.Context) { h.InternalError(c, "boom") }, http.StatusInternalServerError, dto.ErrCodeInternal},
		{"explicit", func(c *gin.Context) { h.Error(c, http.StatusConflict, "NOT_FOUND", "x") }, http.StatusConflict, dto.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			c.Set(middleware.RequestIDKey, "req-1")
			tt.call(c)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerHandleError(t *testing.T) {
	h := &BaseHandler{}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", shared.NewNotFoundError("client not found"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"duplicate keeps specific code", shared.NewDuplicateError("TAG_ALREADY_EXISTS", "tag exists"), http.StatusConflict, "TAG_ALREADY_EXISTS"},
		{"validation", shared.NewValidationError("", "bad input"), http.StatusBadRequest, dto.ErrCodeValidation},
		{"specific validation code", shared.NewValidationError("INVALID_DOCUMENT", "bad document"), http.StatusBadRequest, "INVALID_DOCUMENT"},
		{"persistence", shared.NewPersistenceError("write failed", errors.New("disk")), http.StatusInternalServerError, dto.ErrCodePersistence},
		{"wrapped domain error", fmt.Errorf("resolve: %w", shared.NewNotFoundError("group not found")), http.StatusNotFound, dto.ErrCodeNotFound},
		{"plain error", errors.New("unexpected"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	t.Run("plain error message is not leaked", func(t *testing.T) {
		c, w := newTestContext()
		h.HandleError(c, errors.New("pq: password authentication failed"))

		resp := decodeResponse(t, w)
		assert.NotContains(t, resp.Error.Message, "password")
	})

	t.Run("nil writes nothing", func(t *testing.T) {
		c, w := newTestContext()
		h.HandleError(c, nil)
		assert.Empty(t, w.Body.String())
	})
}

func TestBaseHandlerHandleErrorWithData_PartialCascade(t *testing.T) {
	h := &BaseHandler{}

	report := shared.NewCascadeReport("tag.rename")
	report.Ok("client-1")
	report.Fail("client-2", shared.NewPersistenceError("write failed", errors.New("locked")))

	c, w := newTestContext()
	c.Set(middleware.RequestIDKey, "req-207")
	h.HandleErrorWithData(c, map[string]string{"id": "contact-1"}, report.Err())

	assert.Equal(t, http.StatusMultiStatus, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.NotNil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodePartialCascade, resp.Error.Code)
	assert.Equal(t, "req-207", resp.Error.RequestID)
	require.NotNil(t, resp.Cascade)
	assert.Equal(t, []string{"client-1"}, resp.Cascade.Succeeded)
	require.Len(t, resp.Cascade.Failed, 1)
	assert.Equal(t, "client-2", resp.Cascade.Failed[0].Target)
}
