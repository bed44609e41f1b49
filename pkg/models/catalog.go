package models

import (
	"time"

	"github.com/google/uuid"
)

// Item is one catalog entry: a named, immutable feature vector. Position is
// the row index of the item inside the assembled feature matrix.
type Item struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Position  int       `json:"position" db:"position"`
	Name      string    `json:"name" db:"name"`
	Features  []float64 `json:"features" db:"features"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ItemIngestionRequest struct {
	Name     string    `json:"name" validate:"required,min=1,max=255"`
	Features []float64 `json:"features" validate:"required,min=1,max=1024,dive,number"`
}

type ItemBatchRequest struct {
	Items []ItemIngestionRequest `json:"items" validate:"required,min=1,max=1000,dive"`
}

type CatalogPage struct {
	Items    []Item `json:"items"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}
