package util

import (
	"fmt"

	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
)

func ToOmamoriSummary(om *models.Omamori) models.OmamoriSummary {
	return models.OmamoriSummary{
		Id:          om.Id,
		Title:       om.Title,
		Description: om.Description,
		Status:      om.Status,
		PublishedAt: om.PublishedAt,
		ColorID:     om.ColorID,
		FrameID:     om.FrameID,
		Links: &models.Links{
			Self: &models.Link{Href: fmt.Sprintf("/omamori/%s", om.Id)},
		},
	}
}

func ToOmamoriDetail(om *models.Omamori, els []models.Element) *models.OmamoriDetail {
	views := make([]models.ElementView, len(els))
	for i := range els {
		views[i] = ToElementView(&els[i])
	}
	return &models.OmamoriDetail{
		OmamoriSummary: ToOmamoriSummary(om),
		Elements:       views,
	}
}

func ToElementView(el *models.Element) models.ElementView {
	props := map[string]interface{}(el.Props)
	if props == nil {
		props = map[string]interface{}{}
	}
	transform := map[string]interface{}(el.Transform)
	if transform == nil {
		transform = map[string]interface{}{}
	}
	return models.ElementView{
		Id:        el.Id,
		Type:      el.Type,
		Layer:     el.Layer,
		Props:     props,
		Transform: transform,
	}
}
