package dto

// ProcessResponse answers a batch start or stop.
type ProcessResponse struct {
	Status  string `json:"status"` // started, already running, stopped, not running
	Message string `json:"message"`
}

// ProcessStatusResponse reports the batch controller state and the last run.
type ProcessStatusResponse struct {
	Running bool        `json:"running"`
	LastRun interface{} `json:"last_run,omitempty"`
}

// WSEvent is a WebSocket message for real-time pipeline updates.
type WSEvent struct {
	Type string      `json:"type"` // photo_processed, person_created
	Data interface{} `json:"data"`
}
