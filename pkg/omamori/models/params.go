package models

// OmamoriParams identifies one omamori in a path.
type OmamoriParams struct {
	Id string `path:"id"`
}

// ElementParams identifies one element of one omamori.
type ElementParams struct {
	Id        string `path:"id"`
	ElementId string `path:"elementId"`
}

type ListOmamorisParams struct {
	Page    int    `query:"page"`
	PerPage int    `query:"perPage"`
	BaseURL string // not from query, set in handler
}

// CreateOmamoriInput is the creation request. When frameId is absent the
// catalog's default frame is applied.
type CreateOmamoriInput struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description,omitempty"`
	ColorID     *string `json:"colorId,omitempty"`
	FrameID     *string `json:"frameId,omitempty"`
}

// AddElementInput creates one element. Layer is never caller-supplied: the
// service assigns max+1 (or 0 for the background).
type AddElementInput struct {
	OmamoriParams
	Type      string                 `json:"type" binding:"required"`
	Props     map[string]interface{} `json:"props,omitempty"`
	Transform map[string]interface{} `json:"transform,omitempty"`
}

// UpsertBackgroundInput replaces the background singleton's props/transform.
type UpsertBackgroundInput struct {
	OmamoriParams
	Props     map[string]interface{} `json:"props,omitempty"`
	Transform map[string]interface{} `json:"transform,omitempty"`
}

// UpdateElementInput patches props and/or transform. Type and Layer are
// bound only so the handler can hard-reject attempts to change them; the
// service never sees those fields.
type UpdateElementInput struct {
	ElementParams
	Props     *map[string]interface{} `json:"props,omitempty"`
	Transform *map[string]interface{} `json:"transform,omitempty"`
	Type      *string                 `json:"type,omitempty"`
	Layer     *int                    `json:"layer,omitempty"`
}

// ReorderElementsInput lists every non-background element id in the desired
// rendering order, bottom first.
type ReorderElementsInput struct {
	OmamoriParams
	ElementIds []string `json:"elementIds" binding:"required"`
}

// ElementPatch carries the whitelisted updatable fields into the service.
type ElementPatch struct {
	Props     *map[string]interface{}
	Transform *map[string]interface{}
}
