package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	problem "github.com/omamori-atelier/omamori-api/pkg/omamori/helpers/problem"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/helpers/util"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/services"
)

// OmamoriController binds HTTP requests to the omamori services.
type OmamoriController struct {
	Omamoris   *services.OmamoriService
	Elements   *services.ElementService
	Lifecycle  *services.LifecycleService
	Duplicates *services.DuplicateService
}

func NewOmamoriController(omamoris *services.OmamoriService, elements *services.ElementService,
	lifecycle *services.LifecycleService, duplicates *services.DuplicateService) *OmamoriController {
	return &OmamoriController{
		Omamoris:   omamoris,
		Elements:   elements,
		Lifecycle:  lifecycle,
		Duplicates: duplicates,
	}
}

// userID reads the authenticated user set by the RequireUser middleware.
func userID(ctx *gin.Context) (string, error) {
	id := ctx.GetString("user_id")
	if id == "" {
		return "", problem.APIError{Title: "Unauthorized", Status: http.StatusUnauthorized}
	}
	return id, nil
}

// CreateOmamori handles POST /omamori
func (c *OmamoriController) CreateOmamori(ctx *gin.Context, body *models.CreateOmamoriInput) (*models.OmamoriSummary, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	om, err := c.Omamoris.Create(ctx.Request.Context(), uid, *body)
	if err != nil {
		return nil, err
	}
	summary := util.ToOmamoriSummary(om)
	return &summary, nil
}

// ListOmamoris handles GET /omamori
func (c *OmamoriController) ListOmamoris(ctx *gin.Context, p *models.ListOmamorisParams) (*models.OmamoriListResponse, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 10
	}
	p.BaseURL = ctx.FullPath()

	omamoris, pagination, err := c.Omamoris.List(ctx.Request.Context(), uid, p.Page, p.PerPage)
	if err != nil {
		return nil, err
	}
	util.SetPaginationHeaders(ctx.Request, ctx.Header, pagination)

	summaries := make([]models.OmamoriSummary, len(omamoris))
	for i := range omamoris {
		summaries[i] = util.ToOmamoriSummary(&omamoris[i])
	}
	return &models.OmamoriListResponse{
		Links:    util.PageLinks(p.BaseURL, pagination),
		Omamoris: summaries,
	}, nil
}

// RetrieveOmamori handles GET /omamori/:id
func (c *OmamoriController) RetrieveOmamori(ctx *gin.Context, params *models.OmamoriParams) (*models.OmamoriDetail, error) {
	om, els, err := c.Omamoris.Retrieve(ctx.Request.Context(), params.Id)
	if err != nil {
		return nil, err
	}
	return util.ToOmamoriDetail(om, els), nil
}

// DeleteOmamori handles DELETE /omamori/:id
func (c *OmamoriController) DeleteOmamori(ctx *gin.Context, params *models.OmamoriParams) error {
	uid, err := userID(ctx)
	if err != nil {
		return err
	}
	if err := c.Omamoris.AssertOwner(ctx.Request.Context(), params.Id, uid); err != nil {
		return err
	}
	return c.Omamoris.Delete(ctx.Request.Context(), params.Id)
}

// AddElement handles POST /omamori/:id/elements
func (c *OmamoriController) AddElement(ctx *gin.Context, body *models.AddElementInput) (*models.ElementView, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Omamoris.AssertOwner(ctx.Request.Context(), body.Id, uid); err != nil {
		return nil, err
	}
	el, err := c.Elements.AddElement(ctx.Request.Context(), body.Id, *body)
	if err != nil {
		return nil, err
	}
	view := util.ToElementView(el)
	return &view, nil
}

// UpsertBackground handles PUT /omamori/:id/elements/background
func (c *OmamoriController) UpsertBackground(ctx *gin.Context, body *models.UpsertBackgroundInput) (*models.ElementView, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Omamoris.AssertOwner(ctx.Request.Context(), body.Id, uid); err != nil {
		return nil, err
	}
	el, err := c.Elements.UpsertBackground(ctx.Request.Context(), body.Id, body.Props, body.Transform)
	if err != nil {
		return nil, err
	}
	view := util.ToElementView(el)
	return &view, nil
}

// UpdateElement handles PATCH /omamori/:id/elements/:elementId.
// Type and layer are not patchable; a request carrying them is rejected
// outright rather than silently ignored.
func (c *OmamoriController) UpdateElement(ctx *gin.Context, body *models.UpdateElementInput) (*models.ElementView, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	if body.Type != nil {
		return nil, problem.NewBadRequest("type", "element type is immutable",
			problem.InvalidParam{Name: "type", Reason: "cannot be changed after creation"})
	}
	if body.Layer != nil {
		return nil, problem.NewBadRequest("layer", "layer is managed by reorder only",
			problem.InvalidParam{Name: "layer", Reason: "use the reorder operation instead"})
	}
	if err := c.Omamoris.AssertOwner(ctx.Request.Context(), body.Id, uid); err != nil {
		return nil, err
	}
	el, err := c.Elements.UpdateElement(ctx.Request.Context(), body.Id, body.ElementId, models.ElementPatch{
		Props:     body.Props,
		Transform: body.Transform,
	})
	if err != nil {
		return nil, err
	}
	view := util.ToElementView(el)
	return &view, nil
}

// DeleteElement handles DELETE /omamori/:id/elements/:elementId
func (c *OmamoriController) DeleteElement(ctx *gin.Context, params *models.ElementParams) error {
	uid, err := userID(ctx)
	if err != nil {
		return err
	}
	if err := c.Omamoris.AssertOwner(ctx.Request.Context(), params.Id, uid); err != nil {
		return err
	}
	return c.Elements.DeleteElement(ctx.Request.Context(), params.Id, params.ElementId)
}

// ReorderElements handles PUT /omamori/:id/elements/order
func (c *OmamoriController) ReorderElements(ctx *gin.Context, body *models.ReorderElementsInput) error {
	uid, err := userID(ctx)
	if err != nil {
		return err
	}
	if err := c.Omamoris.AssertOwner(ctx.Request.Context(), body.Id, uid); err != nil {
		return err
	}
	return c.Elements.ReorderElements(ctx.Request.Context(), body.Id, body.ElementIds)
}

// Publish handles POST /omamori/:id/publish
func (c *OmamoriController) Publish(ctx *gin.Context, params *models.OmamoriParams) (*models.OmamoriSummary, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Omamoris.AssertOwner(ctx.Request.Context(), params.Id, uid); err != nil {
		return nil, err
	}
	om, err := c.Lifecycle.Publish(ctx.Request.Context(), params.Id)
	if err != nil {
		return nil, err
	}
	summary := util.ToOmamoriSummary(om)
	return &summary, nil
}

// SaveDraft handles POST /omamori/:id/draft
func (c *OmamoriController) SaveDraft(ctx *gin.Context, params *models.OmamoriParams) (*models.OmamoriSummary, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Omamoris.AssertOwner(ctx.Request.Context(), params.Id, uid); err != nil {
		return nil, err
	}
	om, err := c.Lifecycle.SaveDraft(ctx.Request.Context(), params.Id)
	if err != nil {
		return nil, err
	}
	summary := util.ToOmamoriSummary(om)
	return &summary, nil
}

// Duplicate handles POST /omamori/:id/duplicate. Ownership is re-checked by
// the duplication service itself.
func (c *OmamoriController) Duplicate(ctx *gin.Context, params *models.OmamoriParams) (*models.OmamoriDetail, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	om, els, err := c.Duplicates.Duplicate(ctx.Request.Context(), uid, params.Id)
	if err != nil {
		return nil, err
	}
	return util.ToOmamoriDetail(om, els), nil
}
