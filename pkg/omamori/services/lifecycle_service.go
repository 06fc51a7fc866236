package services

import (
	"context"
	"time"

	problem "github.com/omamori-atelier/omamori-api/pkg/omamori/helpers/problem"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/repositories"
)

// LifecycleService owns the draft/published state machine. Publishing an
// already published omamori and drafting a draft are both no-op successes.
type LifecycleService struct {
	repo repositories.OmamoriRepository
}

func NewLifecycleService(repo repositories.OmamoriRepository) *LifecycleService {
	return &LifecycleService{repo: repo}
}

// Publish moves a draft to published after checking all three readiness
// rules together, so one response reports every violated rule. A fresh
// PublishedAt is stamped on every draft→published transition.
func (s *LifecycleService) Publish(ctx context.Context, omamoriID string) (*models.Omamori, error) {
	om, err := s.repo.GetOmamoriByID(ctx, omamoriID)
	if err != nil {
		return nil, err
	}
	if om == nil {
		return nil, problem.NewNotFound(omamoriID, "omamori not found")
	}
	if om.Status == models.StatusPublished {
		return om, nil
	}

	var violations []problem.InvalidParam
	if om.ColorID == nil {
		violations = append(violations, problem.InvalidParam{
			Name: models.RuleColorRequired, Reason: "an applied color is required to publish"})
	}
	if om.FrameID == nil {
		violations = append(violations, problem.InvalidParam{
			Name: models.RuleFrameRequired, Reason: "an applied frame is required to publish"})
	}
	count, err := s.repo.CountNonBackground(ctx, omamoriID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		violations = append(violations, problem.InvalidParam{
			Name: models.RuleElementsRequired, Reason: "at least one non-background element is required to publish"})
	}
	if len(violations) > 0 {
		return nil, problem.NewPublishValidation(violations...)
	}

	now := time.Now()
	om.Status = models.StatusPublished
	om.PublishedAt = &now
	if err := s.repo.UpdateOmamori(ctx, *om); err != nil {
		return nil, err
	}
	return om, nil
}

// SaveDraft moves a published omamori back to draft, clearing PublishedAt
// and hiding dependent community posts in the same transaction. Drafts pass
// through unchanged.
func (s *LifecycleService) SaveDraft(ctx context.Context, omamoriID string) (*models.Omamori, error) {
	om, err := s.repo.GetOmamoriByID(ctx, omamoriID)
	if err != nil {
		return nil, err
	}
	if om == nil {
		return nil, problem.NewNotFound(omamoriID, "omamori not found")
	}
	if om.Status == models.StatusDraft {
		return om, nil
	}

	om.Status = models.StatusDraft
	om.PublishedAt = nil
	err = s.repo.Transaction(ctx, func(r repositories.OmamoriRepository) error {
		if err := r.UpdateOmamori(ctx, *om); err != nil {
			return err
		}
		return r.HideDependentPosts(ctx, omamoriID)
	})
	if err != nil {
		return nil, err
	}
	return om, nil
}
