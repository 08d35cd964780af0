package types

// EventMessage is the published form of an attendance event.
type EventMessage struct {
	EventID    string        `json:"event_id"`
	SessionID  string        `json:"session_id"`
	Kind       string        `json:"kind"`
	Outcome    string        `json:"outcome"`
	EmployeeID string        `json:"employee_id"`
	Email      string        `json:"email,omitempty"`
	Name       string        `json:"name,omitempty"`
	SiteID     string        `json:"site_id,omitempty"`
	At         string        `json:"at"`
	Faces      *int          `json:"faces,omitempty"`
	Location   *LocationBody `json:"location,omitempty"`
}
