package types

type ActivateRequest struct {
	SiteID string `json:"site_id,omitempty"`
	// StartCamera overrides the kiosk default when set.
	StartCamera *bool `json:"start_camera,omitempty"`
}

type StatusBody struct {
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

type RecordBody struct {
	CheckInTime  *string `json:"check_in_time"`
	CheckOutTime *string `json:"check_out_time"`
}

type SessionResponse struct {
	ID           string     `json:"id"`
	EmployeeID   string     `json:"employee_id"`
	Email        string     `json:"email,omitempty"`
	Name         string     `json:"name,omitempty"`
	SiteID       string     `json:"site_id,omitempty"`
	State        string     `json:"state"`
	Failure      string     `json:"failure,omitempty"`
	CameraActive bool       `json:"camera_active"`
	ModelReady   bool       `json:"model_ready"`
	Record       RecordBody `json:"record"`
	Status       StatusBody `json:"status"`
	CanCheckIn   bool       `json:"can_check_in"`
	CanCheckOut  bool       `json:"can_check_out"`
	ServerTime   string     `json:"server_time"`
}

type HealthResponse struct {
	OK            bool   `json:"ok"`
	ModelReady    bool   `json:"model_ready"`
	ModelError    string `json:"model_error,omitempty"`
	ActiveSession bool   `json:"active_session"`
	ServerTime    string `json:"server_time"`
}
