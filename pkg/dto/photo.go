package dto

// AnnotationResponse is one face on a photo, flattened the way clients draw it.
type AnnotationResponse struct {
	PersonID string `json:"person_id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	W        int    `json:"w"`
	H        int    `json:"h"`
}

type PhotoResponse struct {
	ID              string               `json:"id"`
	Filename        string               `json:"filename"`
	FileURL         string               `json:"file_url"`
	People          []AnnotationResponse `json:"people"`
	State           string               `json:"state"`
	ProcessingError string               `json:"processing_error,omitempty"`
	Tags            []string             `json:"tags"`
	CaptureDate     *string              `json:"capture_date"`
	Location        *string              `json:"location"`
	CreatedAt       string               `json:"created_at"`
}

type PhotoListResponse struct {
	Photos  []PhotoResponse `json:"photos"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

type UploadResponse struct {
	Uploaded []string `json:"uploaded"`
	Rejected []string `json:"rejected,omitempty"`
}

// AddPersonRequest attaches a person to a region of a photo by hand.
type AddPersonRequest struct {
	PersonID string `json:"person_id" binding:"required"`
	X        *int   `json:"x" binding:"required,min=0"`
	Y        *int   `json:"y" binding:"required,min=0"`
	W        int    `json:"w" binding:"required,gt=0"`
	H        int    `json:"h" binding:"required,gt=0"`
}

// ChangePersonRequest re-points the annotation (old person, exact box) to a new person.
type ChangePersonRequest struct {
	OldPersonID string `json:"old_person_id" binding:"required"`
	NewPersonID string `json:"new_person_id" binding:"required"`
	X           *int   `json:"x" binding:"required,min=0"`
	Y           *int   `json:"y" binding:"required,min=0"`
	W           int    `json:"w" binding:"required,gt=0"`
	H           int    `json:"h" binding:"required,gt=0"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
