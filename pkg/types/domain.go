package types

import "time"

// Model represents a discoverable model artifact on disk.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama-q4.gguf
	ID string `json:"id" example:"tinyllama-q4.gguf"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	Name string `json:"name" example:"TinyLlama (Q4)"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Optional family (e.g., llama, mistral, phi). Selects the executor backend.
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// Approximate artifact size in MB, from the file on disk.
	// example: 1200
	SizeMB int `json:"size_mb,omitempty" example:"1200"`
}

// TaskState is the lifecycle state of a compute task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskSelecting TaskState = "selecting"
	TaskExecuting TaskState = "executing"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// GenerationParams tunes text generation for one task. Zero values defer to
// the executor backend's defaults.
type GenerationParams struct {
	// Sampling temperature.
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling cutoff.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Upper bound on generated tokens.
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
}

// Task is a unit of inference work submitted to the scheduler.
// Immutable after creation.
type Task struct {
	// Unique task identifier.
	ID string `json:"id"`
	// Target model identifier; must exist in the model registry.
	ModelID string `json:"model_id"`
	// Opaque input payload handed to the executor.
	Input []byte `json:"input"`
	// Optional generation tuning forwarded to the executor backend.
	Params *GenerationParams `json:"params,omitempty"`
	// Priority is carried for callers but not consulted for ordering;
	// dispatch is strict FIFO.
	Priority int `json:"priority,omitempty"`
	// MaxDuration is the declared execution budget. Exceeding it flags the
	// task overdue but does not abort it.
	MaxDuration time.Duration `json:"max_duration"`
}

// TaskResult is produced once per successfully executed task.
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	Output   []byte        `json:"output"`
	Duration time.Duration `json:"duration"`
	// Overdue marks a completed task whose measured duration exceeded
	// its MaxDuration.
	Overdue bool `json:"overdue,omitempty"`
}

// DeviceDescriptor describes one enumerated accelerator device.
type DeviceDescriptor struct {
	Name        string `json:"name"`
	TotalMemory uint64 `json:"total_memory_bytes"`
}

// MemoryInfo is a point-in-time memory snapshot for one device.
// Used never exceeds Total.
type MemoryInfo struct {
	Device string `json:"device"`
	Total  uint64 `json:"total_bytes"`
	Used   uint64 `json:"used_bytes"`
}
