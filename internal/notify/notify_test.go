package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(NewMemoryStore(), nil)
}

func TestAddAndList(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	svc.Add(ctx, "user_1", "Your bond was approved", TypeBondApproved, "bond_1")
	svc.Add(ctx, "user_1", "Purchase complete", TypePurchase, "bond_2")
	svc.Add(ctx, "user_2", "Your bond was rejected", TypeBondRejected, "bond_3")

	got, err := svc.ListByUser(ctx, "user_1", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications for user_1, got %d", len(got))
	}
	for _, n := range got {
		if n.UserID != "user_1" {
			t.Errorf("notification %s belongs to %s", n.ID, n.UserID)
		}
		if n.Read {
			t.Errorf("new notification %s should be unread", n.ID)
		}
	}
}

func TestListLimit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc.Add(ctx, "user_1", "msg", TypeAccount, "")
	}

	got, err := svc.ListByUser(ctx, "user_1", 3)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected limit of 3, got %d", len(got))
	}
}

func TestMarkRead(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.Add(ctx, "user_1", "hello", TypeAccount, "")

	list, _ := svc.ListByUser(ctx, "user_1", 1)
	if len(list) != 1 {
		t.Fatal("expected one notification")
	}

	n, err := svc.MarkRead(ctx, list[0].ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !n.Read {
		t.Error("expected notification to be read")
	}

	// Idempotent.
	n, err = svc.MarkRead(ctx, list[0].ID)
	if err != nil {
		t.Fatalf("MarkRead repeat: %v", err)
	}
	if !n.Read {
		t.Error("expected notification to stay read")
	}
}

func TestMarkReadNotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.MarkRead(context.Background(), "ntf_missing")
	if err != ErrNotificationNotFound {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}
}

func setupRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandlers(svc).RegisterRoutes(r.Group("/v1"))
	return r
}

func TestListByUserEndpoint(t *testing.T) {
	svc := newTestService()
	svc.Add(context.Background(), "user_1", "Your bond was approved", TypeBondApproved, "bond_1")
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/users/user_1/notifications", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Notifications []*Notification `json:"notifications"`
		Count         int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "Your bond was approved", resp.Notifications[0].Message)
}

func TestListByUserEndpointEmpty(t *testing.T) {
	r := setupRouter(newTestService())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/users/nobody/notifications", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"notifications":[]`)
}

func TestMarkReadEndpointNotFound(t *testing.T) {
	r := setupRouter(newTestService())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/notifications/ntf_missing/read", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}
