package dto

type PersonResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FaceFile   string `json:"face_file"`
	FaceURL    string `json:"face_url,omitempty"`
	PhotoCount int    `json:"photo_count"`
	CreatedAt  string `json:"created_at"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// UpdatePersonRequest changes the display name and/or reference crop.
// At least one field must be present.
type UpdatePersonRequest struct {
	Name     *string `json:"name"`
	FaceFile *string `json:"face_file"`
}
