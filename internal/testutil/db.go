package testutil

import (
	"os"
	"testing"

	"shard-exchange/internal/domain"
	"shard-exchange/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a migrated in-memory SQLite DB. The pool holds exactly one connection,
// so concurrent callers queue behind each other's transactions like row locks would make them.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// OpenPostgres connects to TEST_DATABASE_URL with a real connection pool and migrates it.
// The test is skipped when the variable is unset. Callers must scope their assertions to
// ids they created, since the database is shared between runs.
func OpenPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Open(dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// SeedHolding inserts a holding row directly, bypassing the ledger.
func SeedHolding(t *testing.T, db *gorm.DB, issuerID, holderID uuid.UUID, total, reserved int64) domain.Holding {
	t.Helper()
	h := domain.Holding{
		IssuerID:       issuerID,
		HolderID:       holderID,
		TotalShares:    total,
		ReservedShares: reserved,
		LastUnitPrice:  decimal.Zero,
	}
	require.NoError(t, db.Create(&h).Error)
	return h
}

// LoadHolding reads a holding back; it fails the test when the row is missing.
func LoadHolding(t *testing.T, db *gorm.DB, issuerID, holderID uuid.UUID) domain.Holding {
	t.Helper()
	var h domain.Holding
	require.NoError(t, db.Where("issuer_id = ? AND holder_id = ?", issuerID, holderID).Take(&h).Error)
	return h
}

// SumShares returns the total shards held across all holders of an issuer.
func SumShares(t *testing.T, db *gorm.DB, issuerID uuid.UUID) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, db.Model(&domain.Holding{}).
		Where("issuer_id = ?", issuerID).
		Select("COALESCE(SUM(total_shares), 0)").
		Scan(&sum).Error)
	return sum
}

// AssertReservationInvariant checks 0 <= reserved <= total on every holding.
func AssertReservationInvariant(t *testing.T, db *gorm.DB) {
	t.Helper()
	var bad int64
	require.NoError(t, db.Model(&domain.Holding{}).
		Where("reserved_shares < 0 OR reserved_shares > total_shares OR total_shares < 0").
		Count(&bad).Error)
	require.Zero(t, bad, "holdings violate 0 <= reserved <= total")
}
