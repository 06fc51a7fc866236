package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	problem "github.com/omamori-atelier/omamori-api/pkg/omamori/helpers/problem"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/repositories"
	"github.com/teris-io/shortid"
)

// DuplicateService deep-copies an omamori and its full element set into a
// new draft owned by the requester.
type DuplicateService struct {
	repo repositories.OmamoriRepository
}

func NewDuplicateService(repo repositories.OmamoriRepository) *DuplicateService {
	return &DuplicateService{repo: repo}
}

// Duplicate copies the source omamori for the requesting user. Ownership is
// a strict equality check here, not delegated upstream. The artifact copy
// and every element copy commit as one transaction; a failed element copy
// rolls back everything.
func (s *DuplicateService) Duplicate(ctx context.Context, userID, sourceID string) (*models.Omamori, []models.Element, error) {
	src, err := s.repo.GetOmamoriByID(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	if src == nil {
		return nil, nil, problem.NewNotFound(sourceID, "omamori not found")
	}
	if src.UserID != userID {
		return nil, nil, problem.NewForbidden(sourceID, "only the owner can duplicate an omamori")
	}

	newID := shortid.MustGenerate()
	err = s.repo.Transaction(ctx, func(r repositories.OmamoriRepository) error {
		copied := *src
		copied.Id = newID
		copied.UserID = userID
		copied.Status = models.StatusDraft
		copied.PublishedAt = nil
		// zero timestamps so gorm stamps the copy as a fresh record
		copied.CreatedAt = time.Time{}
		copied.UpdatedAt = time.Time{}
		if err := r.SaveOmamori(ctx, &copied); err != nil {
			return err
		}

		els, err := r.ListElements(ctx, src.Id)
		if err != nil {
			return err
		}
		for _, el := range els {
			dup := el
			dup.Id = uuid.New().String()
			dup.OmamoriID = newID
			if err := r.CreateElement(ctx, &dup); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	fresh, err := s.repo.GetOmamoriByID(ctx, newID)
	if err != nil {
		return nil, nil, err
	}
	els, err := s.repo.ListElements(ctx, newID)
	if err != nil {
		return nil, nil, err
	}
	return fresh, els, nil
}
