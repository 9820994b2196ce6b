package models

import "time"

// HomeModel is a tiny-home floor plan offered in the configurator. Prices
// are in cents.
type HomeModel struct {
	ID           string        `bson:"_id" json:"id"`
	Slug         string        `bson:"slug" json:"slug" yaml:"slug" validate:"required,max=64"`
	ModelCode    string        `bson:"model_code" json:"model_code" yaml:"model_code"`
	Name         string        `bson:"name" json:"name" yaml:"name" validate:"required,max=120"`
	Description  string        `bson:"description" json:"description" yaml:"description"`
	BasePrice    int64         `bson:"base_price" json:"base_price" yaml:"base_price" validate:"gt=0"`
	Specs        ModelSpecs    `bson:"specs" json:"specs" yaml:"specs"`
	Images       []ModelImage  `bson:"images" json:"images" yaml:"images"`
	OptionGroups []OptionGroup `bson:"option_groups" json:"option_groups" yaml:"option_groups" validate:"dive"`
	Active       bool          `bson:"active" json:"active" yaml:"active"`
	CreatedAt    time.Time     `bson:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt    time.Time     `bson:"updated_at" json:"updated_at" yaml:"-"`
}

type ModelSpecs struct {
	LengthFt   float64 `bson:"length_ft" json:"length_ft" yaml:"length_ft" validate:"gte=0"`
	WidthFt    float64 `bson:"width_ft" json:"width_ft" yaml:"width_ft" validate:"gte=0"`
	SquareFeet int     `bson:"square_feet" json:"square_feet" yaml:"square_feet" validate:"gte=0"`
	Bedrooms   int     `bson:"bedrooms" json:"bedrooms" yaml:"bedrooms" validate:"gte=0"`
	Bathrooms  float64 `bson:"bathrooms" json:"bathrooms" yaml:"bathrooms" validate:"gte=0"`
	Loft       bool    `bson:"loft" json:"loft" yaml:"loft"`
}

type ModelImage struct {
	Key     string `bson:"key" json:"key" yaml:"key"`
	URL     string `bson:"url" json:"url" yaml:"url"`
	Alt     string `bson:"alt" json:"alt" yaml:"alt"`
	Primary bool   `bson:"primary" json:"primary" yaml:"primary"`
	Order   int    `bson:"order" json:"order" yaml:"order"`
}

// OptionGroup is one configurator choice, e.g. "Exterior siding".
type OptionGroup struct {
	Key      string        `bson:"key" json:"key" yaml:"key" validate:"required,max=64"`
	Name     string        `bson:"name" json:"name" yaml:"name" validate:"required"`
	Required bool          `bson:"required" json:"required" yaml:"required"`
	Multi    bool          `bson:"multi" json:"multi" yaml:"multi"`
	Options  []ModelOption `bson:"options" json:"options" yaml:"options" validate:"min=1,dive"`
}

type ModelOption struct {
	Key         string `bson:"key" json:"key" yaml:"key" validate:"required,max=64"`
	Name        string `bson:"name" json:"name" yaml:"name" validate:"required"`
	Price       int64  `bson:"price" json:"price" yaml:"price" validate:"gte=0"`
	Description string `bson:"description,omitempty" json:"description,omitempty" yaml:"description"`
}

// PrimaryImage returns the image flagged primary, or the first one.
func (m *HomeModel) PrimaryImage() *ModelImage {
	for i := range m.Images {
		if m.Images[i].Primary {
			return &m.Images[i]
		}
	}
	if len(m.Images) > 0 {
		return &m.Images[0]
	}
	return nil
}

// UpsertModelRequest is the admin payload for creating or replacing a model.
type UpsertModelRequest struct {
	Slug         string        `json:"slug" binding:"required"`
	ModelCode    string        `json:"model_code"`
	Name         string        `json:"name" binding:"required"`
	Description  string        `json:"description"`
	BasePrice    int64         `json:"base_price" binding:"required,gt=0"`
	Specs        ModelSpecs    `json:"specs"`
	OptionGroups []OptionGroup `json:"option_groups"`
	Active       *bool         `json:"active"`
}

// ImageUploadRequest asks for a presigned upload URL for a model image.
type ImageUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// AttachImageRequest records an uploaded image on a model.
type AttachImageRequest struct {
	Key     string `json:"key" binding:"required"`
	Alt     string `json:"alt"`
	Primary bool   `json:"primary"`
}
