package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bondfi/bondfi/internal/notify"
)

func setupRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	svc := NewService(store, notify.NewService(notify.NewMemoryStore(), nil), nil)
	h := NewHandlers(svc)

	r := gin.New()
	r.Use(Identify(store))
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)

	admin := v1.Group("")
	admin.Use(RequireAdmin())
	h.RegisterAdminRoutes(admin)

	return r, svc
}

func doJSON(r *gin.Engine, method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, "POST", "/v1/users", gin.H{"name": "alice", "role": "lister"}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		User *User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.User.Name)
	assert.Equal(t, RoleLister, resp.User.Role)
	assert.NotEmpty(t, resp.User.ID)
}

func TestRegisterEndpointDuplicate(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, "POST", "/v1/users", gin.H{"name": "alice"}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, "POST", "/v1/users", gin.H{"name": "alice"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "name_taken")
}

func TestRegisterEndpointMissingName(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, "POST", "/v1/users", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEndpointNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, "GET", "/v1/users/usr_missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIdentifyRejectsUnknownUser(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, "GET", "/v1/users", nil, "usr_ghost")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_user")
}

func TestVerifyRequiresAdmin(t *testing.T) {
	r, svc := setupRouter(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", RoleLister)
	require.NoError(t, err)

	// Anonymous caller.
	w := doJSON(r, "POST", "/v1/users/"+u.ID+"/verify", gin.H{"approve": true}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Non-admin caller.
	w = doJSON(r, "POST", "/v1/users/"+u.ID+"/verify", gin.H{"approve": true}, u.ID)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin caller.
	admin, err := svc.SeedAdmin(ctx, "usr_admin", "Platform Admin")
	require.NoError(t, err)
	w = doJSON(r, "POST", "/v1/users/"+u.ID+"/verify", gin.H{"approve": true}, admin.ID)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
}
