package bonds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bondfi/bondfi/internal/notify"
	"github.com/bondfi/bondfi/internal/oracle"
	"github.com/bondfi/bondfi/internal/users"
)

type testEnv struct {
	router *gin.Engine
	svc    *Service
	users  *users.Service
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	userStore := users.NewMemoryStore()
	notifier := notify.NewService(notify.NewMemoryStore(), nil)
	userSvc := users.NewService(userStore, notifier, nil)
	oracleSvc := oracle.NewService(oracle.NewMemoryStore(), nil)
	svc := NewService(NewMemoryStore(), oracleSvc, notifier, nil, nil)
	h := NewHandlers(svc)

	r := gin.New()
	r.Use(users.Identify(userStore))
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)

	admin := v1.Group("/admin")
	admin.Use(users.RequireAdmin())
	h.RegisterAdminRoutes(admin)

	return &testEnv{router: r, svc: svc, users: userSvc}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(users.HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedUsers(t *testing.T) (lister, investor, admin *users.User) {
	t.Helper()
	ctx := context.Background()
	var err error
	lister, err = e.users.Register(ctx, "lister", users.RoleLister)
	require.NoError(t, err)
	investor, err = e.users.Register(ctx, "investor", users.RoleInvestor)
	require.NoError(t, err)
	admin, err = e.users.SeedAdmin(ctx, "usr_admin", "Platform Admin")
	require.NoError(t, err)
	return lister, investor, admin
}

func bondBody(couponRate float64) gin.H {
	now := time.Now().UTC()
	return gin.H{
		"name":         "Treasury Note 2031",
		"issuer":       "Ministry of Finance",
		"faceValue":    100000,
		"couponRate":   couponRate,
		"issueDate":    now.AddDate(-1, 0, 0).Format(time.RFC3339),
		"maturityDate": now.AddDate(1, 0, 0).Format(time.RFC3339),
		"totalUnits":   100,
	}
}

func createBondHTTP(t *testing.T, e *testEnv, listerID string, body gin.H) string {
	t.Helper()
	w := e.do(t, "POST", "/v1/bonds", body, listerID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Bond *Bond `json:"bond"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Bond.ID
}

func TestCreateBondEndpoint(t *testing.T) {
	e := setupEnv(t)
	lister, _, _ := e.seedUsers(t)

	id := createBondHTTP(t, e, lister.ID, bondBody(8))
	assert.NotEmpty(t, id)

	// Anonymous listing is refused.
	w := e.do(t, "POST", "/v1/bonds", bondBody(8), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Bad terms are a 400.
	bad := bondBody(8)
	bad["faceValue"] = -5
	w = e.do(t, "POST", "/v1/bonds", bad, lister.ID)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketHidesPendingBonds(t *testing.T) {
	e := setupEnv(t)
	lister, _, admin := e.seedUsers(t)

	id := createBondHTTP(t, e, lister.ID, bondBody(8))

	w := e.do(t, "GET", "/v1/bonds", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	// Pending queue is admin-only.
	w = e.do(t, "GET", "/v1/admin/bonds", nil, lister.ID)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(t, "GET", "/v1/admin/bonds", nil, admin.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	// After approval the bond is on the market.
	w = e.do(t, "POST", "/v1/admin/bonds/"+id+"/approve", gin.H{"approve": true}, admin.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, "GET", "/v1/bonds", nil, "")
	assert.Contains(t, w.Body.String(), id)
}

func TestApproveEndpointOracleGate(t *testing.T) {
	e := setupEnv(t)
	lister, _, admin := e.seedUsers(t)

	// 22% coupon derives a flagged score; plain approval is blocked.
	id := createBondHTTP(t, e, lister.ID, bondBody(22))

	w := e.do(t, "POST", "/v1/admin/bonds/"+id+"/approve", gin.H{"approve": true}, admin.ID)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "oracle_blocked")
	assert.Contains(t, w.Body.String(), oracle.ReasonFailedVerification)

	// An audited override plus override=true goes through.
	w = e.do(t, "POST", "/v1/admin/bonds/"+id+"/oracle-override", gin.H{"score": 95, "note": "verified by custodian"}, admin.ID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, "POST", "/v1/admin/bonds/"+id+"/approve", gin.H{"approve": true}, admin.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Repeat decision is a conflict.
	w = e.do(t, "POST", "/v1/admin/bonds/"+id+"/approve", gin.H{"approve": false}, admin.ID)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_finalized")
}

func TestApproveEndpointRequiresAdmin(t *testing.T) {
	e := setupEnv(t)
	lister, investor, _ := e.seedUsers(t)
	id := createBondHTTP(t, e, lister.ID, bondBody(8))

	w := e.do(t, "POST", "/v1/admin/bonds/"+id+"/approve", gin.H{"approve": true}, investor.ID)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOracleStatusEndpoint(t *testing.T) {
	e := setupEnv(t)
	lister, _, _ := e.seedUsers(t)
	id := createBondHTTP(t, e, lister.ID, bondBody(8))

	w := e.do(t, "GET", "/v1/bonds/"+id+"/oracle", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Oracle oracle.Status `json:"oracle"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "derived", resp.Oracle.Source)
	assert.True(t, resp.Oracle.CanApprove)

	w = e.do(t, "GET", "/v1/bonds/bond_missing/oracle", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseAndResaleFlow(t *testing.T) {
	e := setupEnv(t)
	lister, investor, admin := e.seedUsers(t)
	id := createBondHTTP(t, e, lister.ID, bondBody(8))

	w := e.do(t, "POST", "/v1/admin/bonds/"+id+"/approve", gin.H{"approve": true}, admin.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Buy 10 units.
	w = e.do(t, "POST", "/v1/bonds/"+id+"/purchase", gin.H{"units": 10}, investor.ID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var pResp struct {
		Purchase *Purchase `json:"purchase"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pResp))
	require.Equal(t, 10000.0, pResp.Purchase.CostBasis)

	// Quote the holding.
	w = e.do(t, "GET", "/v1/purchases/"+pResp.Purchase.ID+"/quote", nil, investor.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var qResp struct {
		Quote struct {
			FairMarketValue  float64 `json:"fairMarketValue"`
			IsBeforeMaturity bool    `json:"isBeforeMaturity"`
		} `json:"quote"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &qResp))
	assert.True(t, qResp.Quote.IsBeforeMaturity)
	assert.Greater(t, qResp.Quote.FairMarketValue, 0.0)
	assert.Less(t, qResp.Quote.FairMarketValue, 10000.0)

	// List it for sale, then see it on the secondary market.
	w = e.do(t, "POST", "/v1/purchases/"+pResp.Purchase.ID+"/list",
		gin.H{"units": 10, "askPrice": 9000}, investor.ID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var lResp struct {
		Listing *SaleListing `json:"listing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lResp))

	w = e.do(t, "GET", "/v1/listings", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), lResp.Listing.ID)

	// Someone else cannot cancel it.
	w = e.do(t, "DELETE", "/v1/listings/"+lResp.Listing.ID, nil, lister.ID)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The seller can.
	w = e.do(t, "DELETE", "/v1/listings/"+lResp.Listing.ID, nil, investor.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Holdings query.
	w = e.do(t, "GET", fmt.Sprintf("/v1/investors/%s/purchases", investor.ID), nil, investor.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), pResp.Purchase.ID)
}

func TestPurchaseEndpointErrors(t *testing.T) {
	e := setupEnv(t)
	lister, investor, admin := e.seedUsers(t)
	id := createBondHTTP(t, e, lister.ID, bondBody(8))

	// Pending bond cannot be bought.
	w := e.do(t, "POST", "/v1/bonds/"+id+"/purchase", gin.H{"units": 10}, investor.ID)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not_approved")

	w = e.do(t, "POST", "/v1/admin/bonds/"+id+"/approve", gin.H{"approve": true}, admin.ID)
	require.Equal(t, http.StatusOK, w.Code)

	// Oversized order.
	w = e.do(t, "POST", "/v1/bonds/"+id+"/purchase", gin.H{"units": 1000}, investor.ID)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_units")

	// Anonymous order.
	w = e.do(t, "POST", "/v1/bonds/"+id+"/purchase", gin.H{"units": 10}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown bond.
	w = e.do(t, "POST", "/v1/bonds/bond_missing/purchase", gin.H{"units": 10}, investor.ID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
