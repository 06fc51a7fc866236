package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	problem "github.com/omamori-atelier/omamori-api/pkg/omamori/helpers/problem"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/repositories"
	"gorm.io/gorm"
)

// ElementService enforces the composition rules of one omamori: the
// background singleton at layer 0, next-layer assignment for everything
// else, and the all-or-nothing reorder.
type ElementService struct {
	repo repositories.OmamoriRepository
}

func NewElementService(repo repositories.OmamoriRepository) *ElementService {
	return &ElementService{repo: repo}
}

// AddElement creates one element. Background creation is routed through the
// singleton upsert; text and stamp elements take the next free layer. A
// layer collision with a concurrent add is retried once against the fresh
// max before surfacing a conflict.
func (s *ElementService) AddElement(ctx context.Context, omamoriID string, in models.AddElementInput) (*models.Element, error) {
	om, err := s.repo.GetOmamoriByID(ctx, omamoriID)
	if err != nil {
		return nil, err
	}
	if om == nil {
		return nil, problem.NewNotFound(omamoriID, "omamori not found")
	}

	switch in.Type {
	case models.ElementTypeBackground:
		return s.UpsertBackground(ctx, omamoriID, in.Props, in.Transform)
	case models.ElementTypeText, models.ElementTypeStamp:
	default:
		return nil, problem.NewInvalidElementType(in.Type)
	}

	props := in.Props
	if props == nil {
		props = map[string]interface{}{}
	}
	if in.Type == models.ElementTypeStamp {
		if key, ok := props["asset_key"].(string); !ok || key == "" {
			return nil, problem.NewBadRequest("props", "stamp elements require props.asset_key",
				problem.InvalidParam{Name: "asset_key", Reason: "required for stamp elements"})
		}
	}
	transform := in.Transform
	if transform == nil {
		transform = map[string]interface{}{}
	}

	var created *models.Element
	attempt := func() error {
		return s.repo.Transaction(ctx, func(r repositories.OmamoriRepository) error {
			top, err := r.MaxLayer(ctx, omamoriID)
			if err != nil {
				return err
			}
			el := &models.Element{
				Id:        uuid.New().String(),
				OmamoriID: omamoriID,
				Type:      in.Type,
				Layer:     top + 1,
				Props:     props,
				Transform: transform,
			}
			if err := r.CreateElement(ctx, el); err != nil {
				return err
			}
			created = el
			return nil
		})
	}

	if err := attempt(); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// A concurrent add claimed the same layer; the unique index on
		// (omamori_id, layer) is the backstop. Recompute once.
		if err := attempt(); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, problem.NewConflict(omamoriID, "layer assignment conflicted with a concurrent change")
			}
			return nil, err
		}
	}
	return created, nil
}

// UpsertBackground creates or replaces the background singleton. The
// existing element keeps its identity; only props and transform change.
// The layer is always 0, never caller-controlled.
func (s *ElementService) UpsertBackground(ctx context.Context, omamoriID string, props, transform map[string]interface{}) (*models.Element, error) {
	om, err := s.repo.GetOmamoriByID(ctx, omamoriID)
	if err != nil {
		return nil, err
	}
	if om == nil {
		return nil, problem.NewNotFound(omamoriID, "omamori not found")
	}

	if props == nil {
		props = map[string]interface{}{}
	}
	if kind, ok := props["kind"].(string); !ok || kind == "" {
		return nil, problem.NewBadRequest("props", "background elements require props.kind",
			problem.InvalidParam{Name: "kind", Reason: "required for background elements"})
	}
	if transform == nil {
		transform = map[string]interface{}{}
	}

	var result *models.Element
	err = s.repo.Transaction(ctx, func(r repositories.OmamoriRepository) error {
		existing, err := r.FindBackground(ctx, omamoriID)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Props = props
			existing.Transform = transform
			if err := r.UpdateElement(ctx, existing); err != nil {
				return err
			}
			result = existing
			return nil
		}
		el := &models.Element{
			Id:        uuid.New().String(),
			OmamoriID: omamoriID,
			Type:      models.ElementTypeBackground,
			Layer:     0,
			Props:     props,
			Transform: transform,
		}
		if err := r.CreateElement(ctx, el); err != nil {
			return err
		}
		result = el
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateElement patches props and/or transform of one element. Absent
// fields stay untouched. Type and layer are not updatable here; the
// handler rejects them before the service is reached.
func (s *ElementService) UpdateElement(ctx context.Context, omamoriID, elementID string, patch models.ElementPatch) (*models.Element, error) {
	el, err := s.ownedElement(ctx, omamoriID, elementID)
	if err != nil {
		return nil, err
	}

	if patch.Props != nil {
		el.Props = *patch.Props
	}
	if patch.Transform != nil {
		el.Transform = *patch.Transform
	}
	if err := s.repo.UpdateElement(ctx, el); err != nil {
		return nil, err
	}
	return el, nil
}

// DeleteElement removes one element and closes the layer gap it leaves, so
// the non-background layers stay a contiguous 1..N.
func (s *ElementService) DeleteElement(ctx context.Context, omamoriID, elementID string) error {
	el, err := s.ownedElement(ctx, omamoriID, elementID)
	if err != nil {
		return err
	}

	return s.repo.Transaction(ctx, func(r repositories.OmamoriRepository) error {
		if err := r.DeleteElement(ctx, el.Id); err != nil {
			return err
		}
		if el.IsBackground() {
			return nil
		}
		remaining, err := r.ListElements(ctx, omamoriID)
		if err != nil {
			return err
		}
		if err := r.ShiftLayersNegative(ctx, omamoriID); err != nil {
			return err
		}
		layer := 0
		for _, rest := range remaining {
			if rest.IsBackground() {
				continue
			}
			layer++
			if err := r.UpdateElementLayer(ctx, rest.Id, layer); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReorderElements rewrites the layers of every non-background element from
// the caller-supplied order: position i gets layer i+1. The id list must be
// exactly the current non-background set, without duplicates; anything else
// fails with reorder_mismatch and changes nothing.
func (s *ElementService) ReorderElements(ctx context.Context, omamoriID string, orderedIDs []string) error {
	om, err := s.repo.GetOmamoriByID(ctx, omamoriID)
	if err != nil {
		return err
	}
	if om == nil {
		return problem.NewNotFound(omamoriID, "omamori not found")
	}

	return s.repo.Transaction(ctx, func(r repositories.OmamoriRepository) error {
		els, err := r.ListElements(ctx, omamoriID)
		if err != nil {
			return err
		}
		current := make(map[string]bool)
		for _, el := range els {
			if !el.IsBackground() {
				current[el.Id] = true
			}
		}

		if len(orderedIDs) != len(current) {
			return problem.NewReorderMismatch(
				fmt.Sprintf("expected %d element ids, got %d", len(current), len(orderedIDs)))
		}
		seen := make(map[string]bool, len(orderedIDs))
		for _, id := range orderedIDs {
			if seen[id] {
				return problem.NewReorderMismatch(fmt.Sprintf("duplicate element id %s", id))
			}
			seen[id] = true
			if !current[id] {
				return problem.NewReorderMismatch(
					fmt.Sprintf("element %s is not a non-background element of this omamori", id))
			}
		}

		if err := r.ShiftLayersNegative(ctx, omamoriID); err != nil {
			return err
		}
		for i, id := range orderedIDs {
			if err := r.UpdateElementLayer(ctx, id, i+1); err != nil {
				return err
			}
		}
		return nil
	})
}

// ownedElement loads an element and checks it belongs to the addressed
// omamori.
func (s *ElementService) ownedElement(ctx context.Context, omamoriID, elementID string) (*models.Element, error) {
	el, err := s.repo.GetElementByID(ctx, elementID)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, problem.NewNotFound(elementID, "element not found")
	}
	if el.OmamoriID != omamoriID {
		return nil, problem.NewElementNotInArtifact(omamoriID, elementID)
	}
	return el, nil
}
