package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradescan/gradescan-api/internal/models"
)

// BatchRepository defines data operations for upload batches.
type BatchRepository interface {
	List(ctx context.Context) ([]models.Batch, error)
	GetByID(ctx context.Context, id string) (models.Batch, error)
	Create(ctx context.Context, batch *models.Batch) error
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository instantiates the repository.
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) List(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	if err := r.db.WithContext(ctx).
		Preload("Records").
		Order("created_at DESC").
		Find(&batches).Error; err != nil {
		return nil, err
	}

	return batches, nil
}

func (r *batchRepository) GetByID(ctx context.Context, id string) (models.Batch, error) {
	var batch models.Batch
	if err := r.db.WithContext(ctx).
		Preload("Records").
		First(&batch, "id = ?", id).Error; err != nil {
		return models.Batch{}, err
	}

	return batch, nil
}

func (r *batchRepository) Create(ctx context.Context, batch *models.Batch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}
