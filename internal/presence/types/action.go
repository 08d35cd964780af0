package types

type LocationBody struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	AccuracyM float64 `json:"accuracy_m,omitempty"`
}

// CheckInRequest carries what the client learned from its own location
// prompt. Neither field set counts as a denial.
type CheckInRequest struct {
	Location       *LocationBody `json:"location,omitempty"`
	LocationDenied bool          `json:"location_denied,omitempty"`
}

// ActionResponse answers check-in, check-out and camera requests.
type ActionResponse struct {
	OK         bool            `json:"ok"`
	Outcome    string          `json:"outcome"`
	Status     StatusBody      `json:"status"`
	At         string          `json:"at,omitempty"`
	Faces      *int            `json:"faces,omitempty"`
	Session    SessionResponse `json:"session"`
	ServerTime string          `json:"server_time"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
