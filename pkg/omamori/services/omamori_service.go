package services

import (
	"context"
	"log"
	"time"

	problem "github.com/omamori-atelier/omamori-api/pkg/omamori/helpers/problem"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/repositories"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TrashRetention is how long a soft-deleted omamori is kept before the
// purge job removes it for good.
const TrashRetention = 30 * 24 * time.Hour

// OmamoriService covers the artifact record itself: creation (with the
// default-frame lookup), reads, soft deletion and the trash purge.
type OmamoriService struct {
	repo repositories.OmamoriRepository
}

func NewOmamoriService(repo repositories.OmamoriRepository) *OmamoriService {
	return &OmamoriService{repo: repo}
}

// Create stores a new draft omamori. When the caller picks no frame the
// catalog's default frame is applied, so a later publish can rely on the
// frame reference being set.
func (s *OmamoriService) Create(ctx context.Context, userID string, in models.CreateOmamoriInput) (*models.Omamori, error) {
	frameID := in.FrameID
	if frameID == nil {
		frame, err := s.repo.DefaultFrame(ctx)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			frameID = &frame.Id
		}
	}

	om := &models.Omamori{
		Id:          shortid.MustGenerate(),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Status:      models.StatusDraft,
		ColorID:     in.ColorID,
		FrameID:     frameID,
	}
	if err := s.repo.SaveOmamori(ctx, om); err != nil {
		return nil, err
	}
	return om, nil
}

// AssertOwner resolves the ownership check the composition core assumes
// has already happened: not-found and non-owner both fail here, before any
// core operation runs.
func (s *OmamoriService) AssertOwner(ctx context.Context, id, userID string) error {
	om, err := s.repo.GetOmamoriByID(ctx, id)
	if err != nil {
		return err
	}
	if om == nil {
		return problem.NewNotFound(id, "omamori not found")
	}
	if om.UserID != userID {
		return problem.NewForbidden(id, "only the owner can modify an omamori")
	}
	return nil
}

// Retrieve loads one omamori with its elements in layer order.
func (s *OmamoriService) Retrieve(ctx context.Context, id string) (*models.Omamori, []models.Element, error) {
	om, err := s.repo.GetOmamoriByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if om == nil {
		return nil, nil, problem.NewNotFound(id, "omamori not found")
	}
	els, err := s.repo.ListElements(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return om, els, nil
}

func (s *OmamoriService) List(ctx context.Context, userID string, page, perPage int) ([]models.Omamori, models.Pagination, error) {
	return s.repo.ListOmamoris(ctx, userID, page, perPage)
}

// Delete moves an omamori to the trash. Its elements stay in place until
// the purge job removes the record for good.
func (s *OmamoriService) Delete(ctx context.Context, id string) error {
	om, err := s.repo.GetOmamoriByID(ctx, id)
	if err != nil {
		return err
	}
	if om == nil {
		return problem.NewNotFound(id, "omamori not found")
	}
	return s.repo.DeleteOmamori(ctx, id)
}

// PurgeTrashed removes every omamori trashed longer than TrashRetention
// ago. Each purge is one transaction: hide dependent posts, delete the
// elements, then the record. One broken record must not block the rest.
func (s *OmamoriService) PurgeTrashed(ctx context.Context) error {
	trashed, err := s.repo.ListTrashedBefore(ctx, time.Now().Add(-TrashRetention))
	if err != nil {
		return err
	}

	const maxConcurrent = 2
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	g, ctx := errgroup.WithContext(ctx)

	for _, om := range trashed {
		om := om // capture

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)

			err := s.repo.Transaction(ctx, func(r repositories.OmamoriRepository) error {
				if err := r.HideDependentPosts(ctx, om.Id); err != nil {
					return err
				}
				if err := r.DeleteElementsByOmamori(ctx, om.Id); err != nil {
					return err
				}
				return r.PurgeOmamori(ctx, om.Id)
			})
			if err != nil {
				log.Printf("[purge] skip omamori=%s: %v", om.Id, err)
			}
			return nil
		})
	}

	return g.Wait()
}
