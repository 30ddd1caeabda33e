package types

// SubmitTaskRequest is the payload accepted by POST /tasks.
type SubmitTaskRequest struct {
	// Target model identifier. Must be present in the registry.
	// example: tinyllama-q4.gguf
	Model string `json:"model" example:"tinyllama-q4.gguf"`
	// Opaque input payload for the executor (base64 in JSON).
	Input []byte `json:"input"`
	// Optional generation tuning (temperature, top_p, max_tokens).
	Params *GenerationParams `json:"params,omitempty"`
	// Informational priority; dispatch order is FIFO regardless.
	// example: 1
	Priority int `json:"priority,omitempty" example:"1"`
	// Execution budget in milliseconds. Exceeding it marks the task overdue
	// without aborting it. 0 disables the check.
	// example: 60000
	MaxDurationMS int64 `json:"max_duration_ms,omitempty" example:"60000"`
}

// SubmitTaskResponse is returned by POST /tasks on admission.
type SubmitTaskResponse struct {
	// Assigned task identifier.
	TaskID string `json:"task_id"`
}

// DeviceStatus summarizes one registered device for /status.
type DeviceStatus struct {
	// Device name from enumeration.
	// example: gpu0
	Name string `json:"name" example:"gpu0"`
	// Total device memory in bytes.
	TotalBytes uint64 `json:"total_bytes"`
	// Estimated used memory in bytes.
	UsedBytes uint64 `json:"used_bytes"`
	// Count of in-flight work currently assigned to the device.
	// example: 2
	Load int64 `json:"load" example:"2"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall scheduler state (running, stopped).
	// example: running
	State string `json:"state" example:"running"`
	// Tasks currently waiting in the queue.
	QueueLength int `json:"queue_length"`
	// Queue capacity; submissions block once reached.
	QueueCapacity int `json:"queue_capacity"`
	// Registered devices with load and memory usage.
	Devices []DeviceStatus `json:"devices"`
	// Uptime of the scheduler in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// QueueResponse is returned by GET /queue.
type QueueResponse struct {
	Length int `json:"length"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
