// Package testutil holds shared helpers for package tests: an in-memory
// database, fixtures and mocked authentication.
package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/kendall-kelly/snackline-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RequireNotProduction stops a test run that would touch a production database.
func RequireNotProduction(t *testing.T) {
	t.Helper()

	if env := os.Getenv("GO_ENV"); env == "production" {
		t.Fatalf("SAFETY CHECK FAILED: refusing to run tests with GO_ENV=%q", env)
	}
}

// SetupTestDB opens a fresh in-memory SQLite database with every model
// migrated. The pool holds a single connection so concurrent goroutines
// share the same in-memory database; their statements run one at a time.
// Use SetupPostgresTestDB to exercise real row-level contention.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	RequireNotProduction(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.AllModels()...), "failed to migrate test database")

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// PostgresTestURLEnv names a throwaway Postgres database for contention tests
const PostgresTestURLEnv = "TEST_POSTGRES_URL"

// SetupPostgresTestDB connects to the database named by TEST_POSTGRES_URL
// and recreates every table, or skips the test when the variable is unset.
// The tables are dropped again when the test ends.
func SetupPostgresTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	RequireNotProduction(t)

	url := os.Getenv(PostgresTestURLEnv)
	if url == "" {
		t.Skipf("%s not set, skipping Postgres test", PostgresTestURLEnv)
	}

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to connect to test Postgres")

	tables := models.AllModels()
	require.NoError(t, db.Migrator().DropTable(tables...))
	require.NoError(t, db.AutoMigrate(tables...), "failed to migrate test Postgres")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Migrator().DropTable(tables...)
		_ = sqlDB.Close()
	})
	return db
}

var fixtureSeq atomic.Int64

// CreateUser inserts a user with the given role and a unique Auth0 ID
func CreateUser(t *testing.T, db *gorm.DB, role string) *models.User {
	t.Helper()

	n := fixtureSeq.Add(1)
	user := &models.User{
		Auth0ID: fmt.Sprintf("auth0|user%d", n),
		Name:    fmt.Sprintf("User %d", n),
		Email:   fmt.Sprintf("user%d@example.com", n),
		Role:    role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateProduct inserts an available product in the snack category.
// A product created with zero stock is stored unavailable.
func CreateProduct(t *testing.T, db *gorm.DB, name, price string, stock, stockMinimum int) *models.Product {
	t.Helper()

	product := &models.Product{
		Name:         name,
		Description:  name + " from the counter",
		Price:        decimal.RequireFromString(price),
		Category:     models.CategorySnack,
		Stock:        stock,
		StockMinimum: stockMinimum,
		Available:    stock > 0,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// ReloadProduct reads the current state of a product, soft-deleted included
func ReloadProduct(t *testing.T, db *gorm.DB, id uint) *models.Product {
	t.Helper()

	var product models.Product
	require.NoError(t, db.Unscoped().First(&product, id).Error)
	return &product
}

// CreateOrderWithStatus inserts an order directly, bypassing the workflow,
// with a single line for product.
func CreateOrderWithStatus(t *testing.T, db *gorm.DB, customer *models.User, product *models.Product, quantity int, status string) *models.Order {
	t.Helper()

	order := &models.Order{
		CustomerID: customer.ID,
		Status:     status,
		Lines:      []models.OrderLine{models.NewOrderLine(1, *product, quantity)},
	}
	order.RecomputeTotal()
	require.NoError(t, db.Create(order).Error)
	return order
}
