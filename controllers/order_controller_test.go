package controllers

import (
	"net/http"
	"testing"

	"github.com/kendall-kelly/snackline-api/models"
	"github.com/kendall-kelly/snackline-api/services"
	"github.com/kendall-kelly/snackline-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type OrderControllerTestSuite struct {
	suite.Suite
	env      *testEnv
	customer *models.User
	staff    *models.User
	chips    *models.Product
	soda     *models.Product
}

func (s *OrderControllerTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.customer = testutil.CreateUser(s.T(), s.env.db, models.RoleCustomer)
	s.staff = testutil.CreateUser(s.T(), s.env.db, models.RoleStaff)
	s.chips = testutil.CreateProduct(s.T(), s.env.db, "Potato chips", "2.50", 5, 1)
	s.soda = testutil.CreateProduct(s.T(), s.env.db, "Soda", "1.75", 2, 1)
}

func (s *OrderControllerTestSuite) asCustomer(method, path string, body interface{}) (int, envelope) {
	return serve(s.T(), s.env.routerAs(s.customer.Auth0ID, models.RoleCustomer), method, path, body, nil)
}

func (s *OrderControllerTestSuite) asStaff(method, path string, body interface{}) (int, envelope) {
	return serve(s.T(), s.env.routerAs(s.staff.Auth0ID, models.RoleStaff), method, path, body, nil)
}

func (s *OrderControllerTestSuite) placeOrder(lines ...map[string]interface{}) *models.Order {
	status, resp := s.asCustomer(http.MethodPost, "/api/v1/orders", map[string]interface{}{"lines": lines})
	s.Require().Equal(http.StatusCreated, status, resp.Error.Message)
	var order models.Order
	decodeData(s.T(), resp, &order)
	return &order
}

func line(productID uint, quantity int) map[string]interface{} {
	return map[string]interface{}{"product_id": productID, "quantity": quantity}
}

func (s *OrderControllerTestSuite) TestCreateReservesStock() {
	order := s.placeOrder(line(s.chips.ID, 2), line(s.soda.ID, 1))

	s.Equal(models.OrderStatusPending, order.Status)
	s.Require().Len(order.Lines, 2)
	s.Equal("Potato chips", order.Lines[0].ProductName)
	s.Equal("6.75", order.Total.StringFixed(2))
	s.Equal(3, testutil.ReloadProduct(s.T(), s.env.db, s.chips.ID).Stock)
	s.Equal(1, testutil.ReloadProduct(s.T(), s.env.db, s.soda.ID).Stock)
}

func (s *OrderControllerTestSuite) TestCreateInsufficientStockLeavesLedgerUntouched() {
	status, resp := s.asCustomer(http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"lines": []map[string]interface{}{line(s.chips.ID, 1), line(s.soda.ID, 3)},
	})

	s.Equal(http.StatusConflict, status)
	s.Equal(services.CodeInsufficientStock, resp.Error.Code)
	s.Equal(5, testutil.ReloadProduct(s.T(), s.env.db, s.chips.ID).Stock)
	s.Equal(2, testutil.ReloadProduct(s.T(), s.env.db, s.soda.ID).Stock)
}

func (s *OrderControllerTestSuite) TestCreateValidation() {
	status, resp := s.asCustomer(http.MethodPost, "/api/v1/orders", map[string]interface{}{})
	s.Equal(http.StatusBadRequest, status)
	s.Equal(services.CodeValidation, resp.Error.Code)

	status, _ = s.asStaff(http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"lines": []map[string]interface{}{line(s.chips.ID, 1)},
	})
	s.Equal(http.StatusForbidden, status)
}

func (s *OrderControllerTestSuite) TestUnknownUserMustCreateProfile() {
	router := s.env.routerAs("auth0|stranger", models.RoleCustomer)
	status, resp := serve(s.T(), router, http.MethodGet, "/api/v1/orders/mine", nil, nil)

	s.Equal(http.StatusNotFound, status)
	s.Equal(services.CodeUserNotFound, resp.Error.Code)
}

func (s *OrderControllerTestSuite) TestCancelReleasesStock() {
	order := s.placeOrder(line(s.chips.ID, 4))
	s.Equal(1, testutil.ReloadProduct(s.T(), s.env.db, s.chips.ID).Stock)

	status, resp := s.asCustomer(http.MethodPatch, "/api/v1/orders/"+itoa(order.ID)+"/cancel", nil)
	s.Require().Equal(http.StatusOK, status)
	var cancelled models.Order
	decodeData(s.T(), resp, &cancelled)
	s.Equal(models.OrderStatusCancelled, cancelled.Status)
	s.Equal(5, testutil.ReloadProduct(s.T(), s.env.db, s.chips.ID).Stock)

	status, resp = s.asCustomer(http.MethodPatch, "/api/v1/orders/"+itoa(order.ID)+"/cancel", nil)
	s.Equal(http.StatusConflict, status)
	s.Equal(services.CodeInvalidCancellation, resp.Error.Code)
	s.Equal(5, testutil.ReloadProduct(s.T(), s.env.db, s.chips.ID).Stock)
}

func (s *OrderControllerTestSuite) TestStaffPipeline() {
	order := s.placeOrder(line(s.chips.ID, 1))
	path := "/api/v1/orders/" + itoa(order.ID)

	status, _ := s.asCustomer(http.MethodPatch, path+"/status", map[string]interface{}{"status": models.OrderStatusPreparing})
	s.Equal(http.StatusForbidden, status)

	for _, next := range []string{models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusCompleted} {
		status, resp := s.asStaff(http.MethodPatch, path+"/status", map[string]interface{}{"status": next})
		s.Require().Equal(http.StatusOK, status, resp.Error.Message)
	}

	status, resp := s.asStaff(http.MethodPatch, path+"/status", map[string]interface{}{"status": "teleported"})
	s.Equal(http.StatusBadRequest, status)
	s.Equal(services.CodeValidation, resp.Error.Code)

	status, resp = s.asCustomer(http.MethodPatch, path+"/cancel", nil)
	s.Equal(http.StatusConflict, status)
	s.Equal(services.CodeInvalidCancellation, resp.Error.Code)

	status, resp = s.asStaff(http.MethodPatch, path+"/status", map[string]interface{}{"status": models.OrderStatusReady})
	s.Equal(http.StatusConflict, status)
	s.Equal(services.CodeOrderTerminal, resp.Error.Code)

	status, resp = s.asCustomer(http.MethodGet, path+"/history", nil)
	s.Require().Equal(http.StatusOK, status)
	var history []models.OrderStatusChange
	decodeData(s.T(), resp, &history)
	s.Require().Len(history, 4)
	s.Equal("", history[0].FromStatus)
	s.Equal(models.OrderStatusCompleted, history[3].ToStatus)

	status, resp = s.asStaff(http.MethodDelete, path, nil)
	s.Equal(http.StatusConflict, status)
	s.Equal(services.CodeDeleteNotAllowed, resp.Error.Code)
}

func (s *OrderControllerTestSuite) TestListingAndAccess() {
	order := s.placeOrder(line(s.chips.ID, 1))
	other := testutil.CreateUser(s.T(), s.env.db, models.RoleCustomer)

	status, resp := s.asCustomer(http.MethodGet, "/api/v1/orders/mine", nil)
	s.Require().Equal(http.StatusOK, status)
	var mine []models.Order
	decodeData(s.T(), resp, &mine)
	s.Len(mine, 1)

	status, _ = s.asCustomer(http.MethodGet, "/api/v1/orders", nil)
	s.Equal(http.StatusForbidden, status)

	status, resp = s.asStaff(http.MethodGet, "/api/v1/orders?status=pending", nil)
	s.Require().Equal(http.StatusOK, status)
	var pending []models.Order
	decodeData(s.T(), resp, &pending)
	s.Len(pending, 1)

	status, resp = serve(s.T(), s.env.routerAs(other.Auth0ID, models.RoleCustomer), http.MethodGet, "/api/v1/orders/"+itoa(order.ID), nil, nil)
	s.Equal(http.StatusForbidden, status)
	s.Equal(services.CodeForbidden, resp.Error.Code)

	status, resp = s.asStaff(http.MethodGet, "/api/v1/orders/424242", nil)
	s.Equal(http.StatusNotFound, status)
	s.Equal(services.CodeOrderNotFound, resp.Error.Code)
}

func (s *OrderControllerTestSuite) TestDeleteCancelledOrder() {
	order := s.placeOrder(line(s.soda.ID, 1))
	path := "/api/v1/orders/" + itoa(order.ID)

	status, _ := s.asCustomer(http.MethodPatch, path+"/cancel", nil)
	s.Require().Equal(http.StatusOK, status)

	status, _ = s.asStaff(http.MethodDelete, path, nil)
	s.Equal(http.StatusOK, status)

	status, _ = s.asStaff(http.MethodGet, path, nil)
	s.Equal(http.StatusNotFound, status)
}

func TestOrderControllerSuite(t *testing.T) {
	suite.Run(t, new(OrderControllerTestSuite))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrInvalidInput, http.StatusBadRequest},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrInsufficientStock, http.StatusConflict},
		{services.ErrOrderTerminal, http.StatusConflict},
		{services.ErrInvalidCancellation, http.StatusConflict},
		{services.ErrDeleteNotAllowed, http.StatusConflict},
		{services.ErrDuplicateFeedback, http.StatusConflict},
		{services.ErrOrderNotEligible, http.StatusConflict},
		{services.ErrIdempotencyConflict, http.StatusConflict},
		{services.ErrUpstream, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.Error(), func(t *testing.T) {
			err := &services.ServiceError{Kind: tt.kind, Code: "X", Message: "x"}
			assert.Equal(t, tt.want, statusFor(err))
		})
	}
	require.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
