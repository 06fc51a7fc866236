package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lifecycle states of an omamori.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Element types. The set is extensible, but the composition rules only know
// these three.
const (
	ElementTypeBackground = "background"
	ElementTypeText       = "text"
	ElementTypeStamp      = "stamp"
)

// Publish readiness rule identifiers, reported together on a failed publish.
const (
	RuleColorRequired    = "color_required"
	RuleFrameRequired    = "frame_required"
	RuleElementsRequired = "elements_required"
)

type Omamori struct {
	Id          string `gorm:"column:id;primaryKey"`
	UserID      string `gorm:"column:user_id;index"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `gorm:"column:status;default:draft"`
	PublishedAt *time.Time
	ColorID     *string        `gorm:"column:color_id"`
	Color       *Color         `gorm:"foreignKey:ColorID"`
	FrameID     *string        `gorm:"column:frame_id"`
	Frame       *Frame         `gorm:"foreignKey:FrameID"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Element is one layered component of an omamori. Layer 0 is reserved for
// the background singleton; all other elements occupy layers 1..N. The
// composite unique index is the storage backstop against two writers
// racing to the same layer.
type Element struct {
	Id        string            `gorm:"column:id;primaryKey"`
	OmamoriID string            `gorm:"column:omamori_id;index;uniqueIndex:idx_elements_omamori_layer"`
	Type      string            `gorm:"column:element_type"`
	Layer     int               `gorm:"column:layer;uniqueIndex:idx_elements_omamori_layer"`
	Props     datatypes.JSONMap `gorm:"column:props"`
	Transform datatypes.JSONMap `gorm:"column:transform"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// IsBackground reports whether the element is the background singleton.
func (e *Element) IsBackground() bool { return e.Type == ElementTypeBackground }

// Link represents a hypermedia link.
type Link struct {
	Href string `json:"href"`
}

// Links holds self/next/prev links, HAL style.
type Links struct {
	Self *Link `json:"self"`
	Next *Link `json:"next,omitempty"`
	Prev *Link `json:"prev,omitempty"`
}

// OmamoriSummary is the external view of an omamori without its elements.
type OmamoriSummary struct {
	Id          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	ColorID     *string    `json:"colorId,omitempty"`
	FrameID     *string    `json:"frameId,omitempty"`
	Links       *Links     `json:"_links,omitempty"`
}

// OmamoriDetail includes the full element set in layer order.
type OmamoriDetail struct {
	OmamoriSummary
	Elements []ElementView `json:"elements"`
}

// ElementView is the external view of an element.
type ElementView struct {
	Id        string                 `json:"id"`
	Type      string                 `json:"type"`
	Layer     int                    `json:"layer"`
	Props     map[string]interface{} `json:"props"`
	Transform map[string]interface{} `json:"transform"`
}

// OmamoriListResponse is the root object of a list call.
type OmamoriListResponse struct {
	Links    Links            `json:"_links"`
	Omamoris []OmamoriSummary `json:"omamoris"`
}

type Pagination struct {
	Next           *int `json:"next,omitempty"`
	Previous       *int `json:"previous,omitempty"`
	CurrentPage    int  `json:"currentPage"`
	RecordsPerPage int  `json:"recordsPerPage"`
	TotalPages     int  `json:"totalPages"`
	TotalRecords   int  `json:"totalRecords"`
}
