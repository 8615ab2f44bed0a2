package models

import "time"

// Person is a face identity. FaceFile is the blob key of the reference
// face crop the gallery re-embeds at the start of every batch run.
// Persons are never deleted by the pipeline, even at PhotoCount zero.
type Person struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FaceFile   string    `json:"face_file"`
	PhotoCount int       `json:"photo_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PersonUpdate carries the user-editable fields of a person; nil means unchanged.
type PersonUpdate struct {
	Name     *string
	FaceFile *string
}

func (u PersonUpdate) Empty() bool {
	return u.Name == nil && u.FaceFile == nil
}
