package repositories

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"gorm.io/gorm"
)

// OmamoriRepository is the persistence boundary of the composition core: the
// omamori record, its element collection, and the two collaborator calls the
// core depends on (default frame lookup, hiding dependent posts).
//
// Transaction hands the callback a repository bound to the transaction so a
// multi-statement operation commits or rolls back as one unit.
type OmamoriRepository interface {
	Transaction(ctx context.Context, fn func(repo OmamoriRepository) error) error

	SaveOmamori(ctx context.Context, omamori *models.Omamori) error
	GetOmamoriByID(ctx context.Context, id string) (*models.Omamori, error)
	UpdateOmamori(ctx context.Context, omamori models.Omamori) error
	ListOmamoris(ctx context.Context, userID string, page, perPage int) ([]models.Omamori, models.Pagination, error)
	DeleteOmamori(ctx context.Context, id string) error
	ListTrashedBefore(ctx context.Context, cutoff time.Time) ([]models.Omamori, error)
	PurgeOmamori(ctx context.Context, id string) error

	CreateElement(ctx context.Context, el *models.Element) error
	UpdateElement(ctx context.Context, el *models.Element) error
	GetElementByID(ctx context.Context, id string) (*models.Element, error)
	DeleteElement(ctx context.Context, id string) error
	DeleteElementsByOmamori(ctx context.Context, omamoriID string) error
	ListElements(ctx context.Context, omamoriID string) ([]models.Element, error)
	FindBackground(ctx context.Context, omamoriID string) (*models.Element, error)
	MaxLayer(ctx context.Context, omamoriID string) (int, error)
	CountNonBackground(ctx context.Context, omamoriID string) (int64, error)
	ShiftLayersNegative(ctx context.Context, omamoriID string) error
	UpdateElementLayer(ctx context.Context, elementID string, layer int) error

	DefaultFrame(ctx context.Context) (*models.Frame, error)
	HideDependentPosts(ctx context.Context, omamoriID string) error
}

type omamoriRepository struct {
	db *gorm.DB
}

func NewOmamoriRepository(db *gorm.DB) OmamoriRepository {
	return &omamoriRepository{db: db}
}

func (r *omamoriRepository) Transaction(ctx context.Context, fn func(repo OmamoriRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&omamoriRepository{db: tx})
	})
}

func (r *omamoriRepository) SaveOmamori(ctx context.Context, omamori *models.Omamori) error {
	return r.db.WithContext(ctx).Create(omamori).Error
}

func (r *omamoriRepository) GetOmamoriByID(ctx context.Context, id string) (*models.Omamori, error) {
	var om models.Omamori
	err := r.db.WithContext(ctx).First(&om, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &om, nil
}

func (r *omamoriRepository) UpdateOmamori(ctx context.Context, omamori models.Omamori) error {
	// Select("*") so nil PublishedAt and cleared references are persisted,
	// not skipped as zero values.
	return r.db.WithContext(ctx).
		Model(&models.Omamori{}).
		Where("id = ?", omamori.Id).
		Select("*").Omit("id", "created_at", "deleted_at").
		Updates(omamori).Error
}

func (r *omamoriRepository) ListOmamoris(ctx context.Context, userID string, page, perPage int) ([]models.Omamori, models.Pagination, error) {
	var totalRecords int64
	if err := r.db.WithContext(ctx).Model(&models.Omamori{}).
		Where("user_id = ?", userID).Count(&totalRecords).Error; err != nil {
		return nil, models.Pagination{}, err
	}

	offset := (page - 1) * perPage
	var omamoris []models.Omamori
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(perPage).Offset(offset).
		Find(&omamoris).Error; err != nil {
		return nil, models.Pagination{}, err
	}

	totalPages := int(math.Ceil(float64(totalRecords) / float64(perPage)))
	pagination := models.Pagination{
		CurrentPage:    page,
		RecordsPerPage: perPage,
		TotalPages:     totalPages,
		TotalRecords:   int(totalRecords),
	}
	if page < totalPages {
		next := page + 1
		pagination.Next = &next
	}
	if page > 1 {
		prev := page - 1
		pagination.Previous = &prev
	}

	return omamoris, pagination, nil
}

func (r *omamoriRepository) DeleteOmamori(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Omamori{}, "id = ?", id).Error
}

func (r *omamoriRepository) ListTrashedBefore(ctx context.Context, cutoff time.Time) ([]models.Omamori, error) {
	var omamoris []models.Omamori
	err := r.db.WithContext(ctx).Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Find(&omamoris).Error
	return omamoris, err
}

func (r *omamoriRepository) PurgeOmamori(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&models.Omamori{}, "id = ?", id).Error
}

func (r *omamoriRepository) CreateElement(ctx context.Context, el *models.Element) error {
	return r.db.WithContext(ctx).Create(el).Error
}

func (r *omamoriRepository) UpdateElement(ctx context.Context, el *models.Element) error {
	return r.db.WithContext(ctx).Save(el).Error
}

func (r *omamoriRepository) GetElementByID(ctx context.Context, id string) (*models.Element, error) {
	var el models.Element
	err := r.db.WithContext(ctx).First(&el, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &el, nil
}

func (r *omamoriRepository) DeleteElement(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Element{}, "id = ?", id).Error
}

func (r *omamoriRepository) DeleteElementsByOmamori(ctx context.Context, omamoriID string) error {
	return r.db.WithContext(ctx).Delete(&models.Element{}, "omamori_id = ?", omamoriID).Error
}

func (r *omamoriRepository) ListElements(ctx context.Context, omamoriID string) ([]models.Element, error) {
	var els []models.Element
	err := r.db.WithContext(ctx).
		Where("omamori_id = ?", omamoriID).
		Order("layer ASC").
		Find(&els).Error
	return els, err
}

func (r *omamoriRepository) FindBackground(ctx context.Context, omamoriID string) (*models.Element, error) {
	var el models.Element
	err := r.db.WithContext(ctx).
		First(&el, "omamori_id = ? AND element_type = ?", omamoriID, models.ElementTypeBackground).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &el, nil
}

func (r *omamoriRepository) MaxLayer(ctx context.Context, omamoriID string) (int, error) {
	var top int
	err := r.db.WithContext(ctx).Model(&models.Element{}).
		Where("omamori_id = ? AND element_type <> ?", omamoriID, models.ElementTypeBackground).
		Select("COALESCE(MAX(layer), 0)").
		Scan(&top).Error
	return top, err
}

func (r *omamoriRepository) CountNonBackground(ctx context.Context, omamoriID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Element{}).
		Where("omamori_id = ? AND element_type <> ?", omamoriID, models.ElementTypeBackground).
		Count(&count).Error
	return count, err
}

// ShiftLayersNegative vacates every positive layer of the omamori in one
// statement. A bulk rewrite then assigns fresh positive layers without ever
// tripping the (omamori_id, layer) unique index mid-update. The background
// stays at 0.
func (r *omamoriRepository) ShiftLayersNegative(ctx context.Context, omamoriID string) error {
	return r.db.WithContext(ctx).Model(&models.Element{}).
		Where("omamori_id = ? AND layer > 0", omamoriID).
		Update("layer", gorm.Expr("-layer")).Error
}

func (r *omamoriRepository) UpdateElementLayer(ctx context.Context, elementID string, layer int) error {
	return r.db.WithContext(ctx).Model(&models.Element{}).
		Where("id = ?", elementID).
		Update("layer", layer).Error
}

func (r *omamoriRepository) DefaultFrame(ctx context.Context) (*models.Frame, error) {
	var frame models.Frame
	err := r.db.WithContext(ctx).First(&frame, "is_default = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &frame, nil
}

func (r *omamoriRepository) HideDependentPosts(ctx context.Context, omamoriID string) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).
		Where("omamori_id = ? AND hidden = ?", omamoriID, false).
		Update("hidden", true).Error
}
