package models

// APIRequest is the common request structure of the sync API.
// Requests are routed via the "actions" field in the JSON body.
type APIRequest struct {
	Actions string `json:"actions"`
}

// ScheduleRequest is the body of the scheduleCron action.
type ScheduleRequest struct {
	Actions string `json:"actions"`
	Every   string `json:"every"`
	Period  string `json:"period"`
	Tag     string `json:"tag,omitempty"`
}

// StopJobRequest is the body of the stopJob action.
type StopJobRequest struct {
	Actions string `json:"actions"`
	JobID   string `json:"jobId"`
}

// ImportHistoryRequest is the body of the importHistory action.
type ImportHistoryRequest struct {
	Actions string       `json:"actions"`
	Entries []RunSummary `json:"entries"`
}

// SyncResponse is the JSON result of every sync API action.
type SyncResponse struct {
	Success              bool           `json:"success"`
	Message              string         `json:"message,omitempty"`
	Error                string         `json:"error,omitempty"`
	UpdatedProductsCount *int           `json:"updatedProductsCount,omitempty"`
	UpdatedProducts      []UpdateDetail `json:"updatedProducts,omitempty"`
	JobID                string         `json:"jobId,omitempty"`
	Run                  *RunSummary    `json:"run,omitempty"`
	Jobs                 []Trigger      `json:"jobs,omitempty"`
	History              []RunSummary   `json:"history,omitempty"`
	Columns              []string       `json:"columns,omitempty"`
	Stats                *Stats         `json:"stats,omitempty"`
}

// Stats is the dashboard summary: active triggers and products updated in the last 24 hours.
type Stats struct {
	Active          int `json:"active"`
	UpdatedProducts int `json:"updatedProducts"`
}
