package models

import "time"

// PhotoProcessedEvent is published once a photo reaches a terminal state.
type PhotoProcessedEvent struct {
	PhotoID   string           `json:"photo_id"`
	State     ProcessingState  `json:"state"`
	People    []FaceAnnotation `json:"people"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// PersonCreatedEvent is published when the resolver mints a new person.
type PersonCreatedEvent struct {
	PersonID  string    `json:"person_id"`
	Name      string    `json:"name"`
	FaceFile  string    `json:"face_file"`
	PhotoID   string    `json:"photo_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionStatus = "status"
)

// ControlCommand is sent to a worker over the control subject.
type ControlCommand struct {
	Action string `json:"action"`
}

// ControlReply answers a ControlCommand.
type ControlReply struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}
