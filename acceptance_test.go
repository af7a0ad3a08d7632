package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/controllers"
	"github.com/kendall-kelly/snackline-api/models"
	"github.com/kendall-kelly/snackline-api/services"
	"github.com/kendall-kelly/snackline-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticIdentity answers /userinfo with the same profile for every token
type staticIdentity struct{}

func (staticIdentity) GetUserInfo(ctx context.Context, accessToken string) (*services.Auth0UserInfo, error) {
	return &services.Auth0UserInfo{Sub: "auth0|walk-in", Name: "Walk In", Email: "walkin@example.com"}, nil
}

// recordingDispatcher keeps every alert it is asked to send
type recordingDispatcher struct {
	mu       sync.Mutex
	subjects []string
}

func (d *recordingDispatcher) SendAlert(ctx context.Context, recipient, subject, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects = append(d.subjects, subject)
	return nil
}

func (d *recordingDispatcher) sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subjects)
}

type apiClient struct {
	t      *testing.T
	router *gin.Engine
}

func clientAs(t *testing.T, deps controllers.Dependencies, auth0ID, role string) *apiClient {
	return &apiClient{t: t, router: setupRouter(testConfig(), testutil.MockAuthMiddleware(auth0ID, role), deps)}
}

func (c *apiClient) call(method, path string, body interface{}, out interface{}) int {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if out != nil && w.Code < 300 {
		envelope := struct {
			Data interface{} `json:"data"`
		}{Data: out}
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &envelope))
	}
	return w.Code
}

// TestSnacklineDayAcceptance walks a product from the menu to a reviewed
// order: profile creation, a rush of concurrent orders against scarce stock,
// the kitchen pipeline, cancellation and high-risk feedback.
func TestSnacklineDayAcceptance(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	db, deps := newTestDependencies(t, dispatcher)
	staffUser := testutil.CreateUser(t, db, models.RoleStaff)
	staff := clientAs(t, deps, staffUser.Auth0ID, models.RoleStaff)

	// a walk-in customer signs up from their Auth0 identity
	walkIn := clientAs(t, deps, "auth0|walk-in", models.RoleCustomer)
	var profile models.User
	require.Equal(t, http.StatusCreated, walkIn.call(http.MethodPost, "/api/v1/users", nil, &profile))
	assert.Equal(t, models.RoleCustomer, profile.Role)

	// staff puts three empanadas on the menu
	var empanada models.Product
	require.Equal(t, http.StatusCreated, staff.call(http.MethodPost, "/api/v1/products", map[string]interface{}{
		"name":          "Empanada",
		"price":         "3.00",
		"category":      models.CategoryFood,
		"stock":         3,
		"stock_minimum": 1,
	}, &empanada))

	// six customers race for the three empanadas
	customers := []*apiClient{walkIn}
	for i := 0; i < 5; i++ {
		u := testutil.CreateUser(t, db, models.RoleCustomer)
		customers = append(customers, clientAs(t, deps, u.Auth0ID, models.RoleCustomer))
	}

	statuses := make([]int, len(customers))
	orders := make([]models.Order, len(customers))
	var wg sync.WaitGroup
	for i, c := range customers {
		wg.Add(1)
		go func(i int, c *apiClient) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders",
				bytes.NewBufferString(`{"lines":[{"product_id":`+itoaUint(empanada.ID)+`,"quantity":1}]}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			c.router.ServeHTTP(w, req)
			statuses[i] = w.Code
			if w.Code == http.StatusCreated {
				var env struct {
					Data models.Order `json:"data"`
				}
				if json.Unmarshal(w.Body.Bytes(), &env) == nil {
					orders[i] = env.Data
				}
			}
		}(i, c)
	}
	wg.Wait()

	var won []int
	for i, status := range statuses {
		switch status {
		case http.StatusCreated:
			won = append(won, i)
		case http.StatusConflict:
		default:
			t.Fatalf("customer %d got unexpected status %d", i, status)
		}
	}
	require.Len(t, won, 3, "exactly the available stock is sold")

	var sold models.Product
	require.Equal(t, http.StatusOK, staff.call(http.MethodGet, "/api/v1/products/"+itoaUint(empanada.ID), nil, &sold))
	assert.Equal(t, 0, sold.Stock)
	assert.False(t, sold.Available)

	// one winner cancels, the stock comes back
	canceller := customers[won[0]]
	require.Equal(t, http.StatusOK, canceller.call(http.MethodPatch, "/api/v1/orders/"+itoaUint(orders[won[0]].ID)+"/cancel", nil, nil))
	require.Equal(t, http.StatusOK, staff.call(http.MethodGet, "/api/v1/products/"+itoaUint(empanada.ID), nil, &sold))
	assert.Equal(t, 1, sold.Stock)
	assert.True(t, sold.Available)

	// another winner's order goes through the kitchen
	served := customers[won[1]]
	orderPath := "/api/v1/orders/" + itoaUint(orders[won[1]].ID)
	for _, status := range []string{models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusCompleted} {
		require.Equal(t, http.StatusOK, staff.call(http.MethodPatch, orderPath+"/status", map[string]string{"status": status}, nil))
	}

	// and they hated it
	var feedback models.Feedback
	require.Equal(t, http.StatusCreated, served.call(http.MethodPost, "/api/v1/feedback", map[string]interface{}{
		"order_id":     orders[won[1]].ID,
		"rating":       1,
		"comment":      "cold and disgusting",
		"food_quality": 1,
		"wait_time":    2,
		"attention":    3,
	}, &feedback))
	assert.Equal(t, models.RiskHigh, feedback.RiskLevel)
	assert.True(t, feedback.AlertDispatched)
	assert.Equal(t, 1, dispatcher.sent())

	var history []models.OrderStatusChange
	require.Equal(t, http.StatusOK, served.call(http.MethodGet, orderPath+"/history", nil, &history))
	assert.Len(t, history, 4)
}

func itoaUint(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
