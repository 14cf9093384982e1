package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/socialgraph/internal/apperr"
)

func TestError_MapsTaxonomyToStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("user bob"), http.StatusNotFound},
		{apperr.Conflict("already following"), http.StatusConflict},
		{apperr.Forbidden("blocked"), http.StatusForbidden},
		{apperr.BadRequest("self"), http.StatusBadRequest},
		{apperr.Unavailable("graph.upsert", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		Error(c, tc.err)

		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		var body Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.want, body.Code)
		assert.Equal(t, tc.err.Error(), body.Message)
	}
}
