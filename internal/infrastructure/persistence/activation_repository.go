package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/platform/internal/domain/module"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormActivationRepository implements module.ActivationRepository using GORM
type GormActivationRepository struct {
	db *gorm.DB
}

// NewGormActivationRepository creates a new GormActivationRepository
func NewGormActivationRepository(db *gorm.DB) *GormActivationRepository {
	return &GormActivationRepository{db: db}
}

// FindActiveModuleIDs returns the ids of the company's active modules, ordered by id
func (r *GormActivationRepository) FindActiveModuleIDs(ctx context.Context, companyID uuid.UUID) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.ModuleActivationModel{}).
		Where("company_id = ? AND is_active = ?", companyID, true).
		Order("module_id ASC").
		Pluck("module_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindByCompanyAndModule finds the activation record for a (company, module) pair
func (r *GormActivationRepository) FindByCompanyAndModule(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, error) {
	var model models.ModuleActivationModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND module_id = ?", companyID, moduleID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCompany returns every stored activation record of the company
func (r *GormActivationRepository) FindByCompany(ctx context.Context, companyID uuid.UUID) ([]module.Activation, error) {
	var rows []models.ModuleActivationModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("module_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	activations := make([]module.Activation, len(rows))
	for i := range rows {
		activations[i] = *rows[i].ToDomain()
	}
	return activations, nil
}

// Save writes the lifecycle columns of an existing (company_id, module_id) row, or inserts a new one.
// Settings of an existing row are never touched so they survive re-activation.
func (r *GormActivationRepository) Save(ctx context.Context, activation *module.Activation) error {
	model, err := models.ModuleActivationModelFromDomain(activation)
	if err != nil {
		return err
	}

	db := r.db.WithContext(ctx)
	result := db.Model(&models.ModuleActivationModel{}).
		Where("company_id = ? AND module_id = ?", model.CompanyID, model.ModuleID).
		Updates(map[string]any{
			"is_active":      model.IsActive,
			"activated_at":   model.ActivatedAt,
			"deactivated_at": model.DeactivatedAt,
			"updated_at":     model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// a concurrent writer may have inserted the row since the update
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "module_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "activated_at", "deactivated_at", "updated_at"}),
	}).Create(model).Error
}

// UpdateSettings replaces the settings of an existing record
func (r *GormActivationRepository) UpdateSettings(ctx context.Context, companyID uuid.UUID, moduleID string, settings module.Settings) error {
	encoded, err := models.MarshalSettings(settings)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&models.ModuleActivationModel{}).
		Where("company_id = ? AND module_id = ?", companyID, moduleID).
		Updates(map[string]any{
			"settings":   encoded,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ module.ActivationRepository = (*GormActivationRepository)(nil)
