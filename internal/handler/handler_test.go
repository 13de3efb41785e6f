package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonhub/internal/auth"
	"lessonhub/internal/scheduling"
)

const (
	testIssuer = "lessonhub-test"
	testKey    = "test-signing-key"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	h := New(scheduling.NewService(nil, nil, nil, nil), nil, nil, testIssuer, testKey, time.Minute, time.Hour)
	h.Register(r)
	return r
}

func TestMutationEndpointsArePostOnly(t *testing.T) {
	r := newTestRouter()
	id := uuid.NewString()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/schedules/" + id + "/delete"},
		{http.MethodDelete, "/v1/schedules/" + id + "/delete"},
		{http.MethodPut, "/v1/schedules"},
		{http.MethodGet, "/v1/admin/schedules/recurring"},
		{http.MethodPut, "/v1/admin/settings"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules", strings.NewReader(`{}`))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStudentTokenCannotReachAdminRoutes(t *testing.T) {
	r := newTestRouter()

	tokens, err := auth.Issue(uuid.NewString(), uuid.NewString(), auth.RoleStudent, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateSettingRejectsUnknownKey(t *testing.T) {
	r := newTestRouter()

	tokens, err := auth.Issue(uuid.NewString(), uuid.NewString(), auth.RoleAdmin, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	body := `{"name":"grace_period_hours","value":5}`
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/settings", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown setting is client error, not 500")
}

func TestDurationOptionsWithValidToken(t *testing.T) {
	r := newTestRouter()

	tokens, err := auth.Issue(uuid.NewString(), uuid.NewString(), auth.RoleStudent, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/durations", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hours")
}
