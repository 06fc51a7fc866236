package models

import "time"

// Color is a catalog entry an omamori can apply. The catalog itself is
// maintained elsewhere; the core only checks presence of the reference.
type Color struct {
	Id    string `gorm:"column:id;primaryKey"`
	Label string `json:"label"`
	Hex   string `json:"hex"`
}

// Frame is a catalog entry. Exactly one frame is expected to carry
// IsDefault, assigned at omamori creation when the caller picks none.
type Frame struct {
	Id        string `gorm:"column:id;primaryKey"`
	Label     string `json:"label"`
	AssetKey  string `gorm:"column:asset_key"`
	IsDefault bool   `gorm:"column:is_default"`
}

// Post is community content referencing an omamori. Posts are hidden when
// the omamori they reference leaves the published state.
type Post struct {
	Id        string    `gorm:"column:id;primaryKey"`
	OmamoriID string    `gorm:"column:omamori_id;index"`
	UserID    string    `gorm:"column:user_id"`
	Body      string    `json:"body"`
	Hidden    bool      `gorm:"column:hidden"`
	CreatedAt time.Time `json:"createdAt"`
}
