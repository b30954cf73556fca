package persistence

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/platform/internal/domain/module"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupActivationTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	err = db.Exec(`
		CREATE TABLE company_module_activations (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			module_id TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			activated_at DATETIME,
			deactivated_at DATETIME,
			settings TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(company_id, module_id)
		)
	`).Error
	require.NoError(t, err)

	return db
}

func newMockActivationRepository(t *testing.T) (*GormActivationRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewGormActivationRepository(db), mock, mockDB
}

func activate(companyID uuid.UUID, moduleID string, at time.Time) *module.Activation {
	a := module.NeverActivated(companyID, moduleID)
	a.Activate(at)
	return a
}

func TestGormActivationRepository_SaveAndFind(t *testing.T) {
	db := setupActivationTestDB(t)
	repo := NewGormActivationRepository(db)
	ctx := context.Background()
	companyID := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, activate(companyID, "base", now)))
	require.NoError(t, repo.Save(ctx, activate(companyID, "pos", now)))

	ids, err := repo.FindActiveModuleIDs(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "pos"}, ids)

	got, err := repo.FindByCompanyAndModule(ctx, companyID, "pos")
	require.NoError(t, err)
	assert.Equal(t, module.LifecycleActive, got.State)
	require.NotNil(t, got.ActivatedAt)
	assert.True(t, got.ActivatedAt.Equal(now))
	assert.Nil(t, got.DeactivatedAt)
	assert.Empty(t, got.Settings)

	all, err := repo.FindByCompany(ctx, companyID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "base", all[0].ModuleID)

	t.Run("other companies are isolated", func(t *testing.T) {
		ids, err := repo.FindActiveModuleIDs(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestGormActivationRepository_NotFound(t *testing.T) {
	repo := NewGormActivationRepository(setupActivationTestDB(t))

	_, err := repo.FindByCompanyAndModule(context.Background(), uuid.New(), "pos")
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	err = repo.UpdateSettings(context.Background(), uuid.New(), "pos", module.Settings{"a": 1})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestGormActivationRepository_SoftDisablePreservesSettings(t *testing.T) {
	db := setupActivationTestDB(t)
	repo := NewGormActivationRepository(db)
	ctx := context.Background()
	companyID := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, activate(companyID, "salon", now)))
	require.NoError(t, repo.UpdateSettings(ctx, companyID, "salon", module.Settings{
		"booking_slot_minutes": float64(30),
		"currency":             "EUR",
	}))

	stored, err := repo.FindByCompanyAndModule(ctx, companyID, "salon")
	require.NoError(t, err)
	require.NoError(t, stored.Deactivate(now.Add(time.Hour)))
	// a stale settings bag on the domain object must not reach storage
	stored.Settings = module.Settings{}
	require.NoError(t, repo.Save(ctx, stored))

	inactive, err := repo.FindByCompanyAndModule(ctx, companyID, "salon")
	require.NoError(t, err)
	assert.Equal(t, module.LifecycleInactive, inactive.State)
	require.NotNil(t, inactive.DeactivatedAt)
	assert.Equal(t, module.Settings{"booking_slot_minutes": float64(30), "currency": "EUR"}, inactive.Settings)

	ids, err := repo.FindActiveModuleIDs(ctx, companyID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	inactive.Activate(now.Add(2 * time.Hour))
	require.NoError(t, repo.Save(ctx, inactive))

	reactivated, err := repo.FindByCompanyAndModule(ctx, companyID, "salon")
	require.NoError(t, err)
	assert.Equal(t, module.LifecycleActive, reactivated.State)
	assert.Equal(t, inactive.ID, reactivated.ID)
	assert.Nil(t, reactivated.DeactivatedAt)
	assert.Equal(t, "EUR", reactivated.Settings["currency"])

	var count int64
	require.NoError(t, db.Table("company_module_activations").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormActivationRepository_SQL(t *testing.T) {
	companyID := uuid.New()

	t.Run("FindActiveModuleIDs plucks active module ids", func(t *testing.T) {
		repo, mock, mockDB := newMockActivationRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT .*module_id.* FROM "company_module_activations" WHERE company_id = \$1 AND is_active = \$2 ORDER BY module_id ASC`).
			WithArgs(companyID, true).
			WillReturnRows(sqlmock.NewRows([]string{"module_id"}).AddRow("base").AddRow("pos"))

		ids, err := repo.FindActiveModuleIDs(context.Background(), companyID)
		require.NoError(t, err)
		assert.Equal(t, []string{"base", "pos"}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage errors pass through", func(t *testing.T) {
		repo, mock, mockDB := newMockActivationRepository(t)
		defer mockDB.Close()

		boom := errors.New("connection reset")
		mock.ExpectQuery(`SELECT .* FROM "company_module_activations"`).WillReturnError(boom)

		_, err := repo.FindActiveModuleIDs(context.Background(), companyID)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("UpdateSettings with no matching row is not found", func(t *testing.T) {
		repo, mock, mockDB := newMockActivationRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "company_module_activations" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateSettings(context.Background(), companyID, "pos", module.Settings{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Save inserts with upsert when no row exists", func(t *testing.T) {
		repo, mock, mockDB := newMockActivationRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "company_module_activations" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "company_module_activations"`) + `.*ON CONFLICT \("company_id","module_id"\) DO UPDATE`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Save(context.Background(), activate(companyID, "pos", time.Now()))
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
