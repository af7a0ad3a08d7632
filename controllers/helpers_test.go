package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/services"
	"github.com/kendall-kelly/snackline-api/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeIdentity struct {
	info *services.Auth0UserInfo
	err  error
}

func (f *fakeIdentity) GetUserInfo(ctx context.Context, accessToken string) (*services.Auth0UserInfo, error) {
	return f.info, f.err
}

// testEnv wires every service over one in-memory database
type testEnv struct {
	db       *gorm.DB
	deps     Dependencies
	s3       *services.MockS3Service
	identity *fakeIdentity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	s3 := services.NewMockS3Service()
	identity := &fakeIdentity{}
	inventory := services.NewInventoryService(db, logger)

	return &testEnv{
		db:       db,
		s3:       s3,
		identity: identity,
		deps: Dependencies{
			Catalog:   services.NewCatalogService(db, services.NewS3ImageService(s3), logger),
			Inventory: inventory,
			Orders:    services.NewOrderService(db, inventory, nil, logger),
			Feedback: services.NewFeedbackService(db, services.NewLogAlertDispatcher(logger),
				services.AlertOptions{Recipient: "ops@test.local"}, logger),
			Users:  services.NewUserService(db, identity, logger),
			Logger: logger,
		},
	}
}

// routerAs returns the full API router authenticated as auth0ID
func (e *testEnv) routerAs(auth0ID, role string) *gin.Engine {
	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), testutil.MockAuthMiddleware(auth0ID, role), e.deps)
	return router
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func serve(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return w.Code, resp
}

func decodeData(t *testing.T, resp envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, dst))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
