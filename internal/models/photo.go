package models

import (
	"image"
	"time"
)

// ProcessingState tracks a photo through the face pipeline.
// Terminal states are final: a photo never returns to StateUnprocessed.
type ProcessingState string

const (
	StateUnprocessed        ProcessingState = "unprocessed"
	StateProcessed          ProcessingState = "processed"
	StateProcessedWithError ProcessingState = "processed_with_error"
)

// Terminal reports whether the state is one the pipeline never leaves.
func (s ProcessingState) Terminal() bool {
	return s == StateProcessed || s == StateProcessedWithError
}

type Photo struct {
	ID              string           `json:"id"`
	Filename        string           `json:"filename"`
	People          []FaceAnnotation `json:"people"`
	State           ProcessingState  `json:"state"`
	ProcessingError string           `json:"processing_error,omitempty"`
	Tags            []string         `json:"tags"`
	CaptureDate     *time.Time       `json:"capture_date"`
	Location        *string          `json:"location"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// FaceAnnotation is one detected face on a photo, resolved to a person.
type FaceAnnotation struct {
	PersonID string      `json:"person_id" bson:"person_id"`
	Box      BoundingBox `json:"box" bson:"box"`
}

// BoundingBox is a face region in source-image pixel coordinates.
type BoundingBox struct {
	X int `json:"x" bson:"x"`
	Y int `json:"y" bson:"y"`
	W int `json:"w" bson:"w"`
	H int `json:"h" bson:"h"`
}

func BoxFromRect(r image.Rectangle) BoundingBox {
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Valid reports whether the box has a non-negative origin and positive size.
func (b BoundingBox) Valid() bool {
	return b.X >= 0 && b.Y >= 0 && b.W > 0 && b.H > 0
}
