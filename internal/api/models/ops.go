package models

// Health is the liveness and readiness body.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus is the body of the ops status endpoint.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
	Refresh    RefreshStatus     `json:"refresh"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus represents the status of an upstream provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// RefreshStatus describes the station refresh history.
type RefreshStatus struct {
	Refreshes      int64      `json:"refreshes"`
	Failures       int64      `json:"failures"`
	LastAttemptAt  *Timestamp `json:"lastAttemptAt,omitempty"`
	LastSuccessAt  *Timestamp `json:"lastSuccessAt,omitempty"`
	LastDurationMs int64      `json:"lastDurationMs"`
	LastError      string     `json:"lastError,omitempty"`
	Stations       int        `json:"stations"`
	Online         int        `json:"online"`
	Degraded       int        `json:"degraded"`
	Offline        int        `json:"offline"`
}
