package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradescan/gradescan-api/internal/models"
)

// RecordRepository defines data operations for grading records.
type RecordRepository interface {
	ListByBatch(ctx context.Context, batchID string) ([]models.Record, error)
	GetByID(ctx context.Context, id string) (models.Record, error)
	Create(ctx context.Context, record *models.Record) error
	Update(ctx context.Context, record *models.Record) error
}

type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository instantiates the repository.
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Record, error) {
	var records []models.Record
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, identifier ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *recordRepository) GetByID(ctx context.Context, id string) (models.Record, error) {
	var record models.Record
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return models.Record{}, err
	}

	return record, nil
}

func (r *recordRepository) Create(ctx context.Context, record *models.Record) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *recordRepository) Update(ctx context.Context, record *models.Record) error {
	return r.db.WithContext(ctx).Save(record).Error
}
