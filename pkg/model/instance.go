package model

import "time"

// Status is a HookInstance's position in the lifecycle state machine
// (spec.md §4.1). Transitions are table-driven; see internal/lifecycle.
type Status string

const (
	StatusInstalling   Status = "installing"
	StatusInstalled    Status = "installed"
	StatusStarting     Status = "starting"
	StatusRunning      Status = "running"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
	StatusUninstalling Status = "uninstalling"
	StatusUpdating     Status = "updating"
)

// HealthStatus is the last-observed health of a running instance.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// HookInstance is the runtime record the lifecycle engine owns for one
// installed hook. It is the only mutable row in the data model; the
// manifest it was installed from never changes.
type HookInstance struct {
	InstanceID string  `json:"instanceId"`
	HookID     string  `json:"hookId"`
	Runtime    Runtime `json:"runtime"`
	Manifest   Manifest `json:"manifest"`

	Status           Status       `json:"status"`
	HealthStatus     HealthStatus `json:"healthStatus"`
	LastHealthCheckAt *time.Time  `json:"lastHealthCheckAt,omitempty"`
	Error            string       `json:"error,omitempty"`
	StartedAt        *time.Time   `json:"startedAt,omitempty"`
	StoppedAt        *time.Time   `json:"stoppedAt,omitempty"`
	LastUpdatedAt    *time.Time   `json:"lastUpdatedAt,omitempty"`

	// Container runtime fields.
	ContainerID   string `json:"containerId,omitempty"`
	ContainerName string `json:"containerName,omitempty"`
	HostPort      int    `json:"hostPort,omitempty"`

	// Embedded runtime fields.
	ModuleLoaded    bool `json:"moduleLoaded,omitempty"`
	InvocationCount int  `json:"invocationCount,omitempty"`

	// Gateway runtime field.
	BaseURL string `json:"baseUrl,omitempty"`

	InstalledVersion string `json:"installedVersion"`
	PreviousVersion  string `json:"previousVersion,omitempty"`
	PreviousImageTag string `json:"previousImageTag,omitempty"`

	Config      map[string]any    `json:"config,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// Active reports whether the instance still occupies its hookId / hostPort
// (i.e. it has not reached the terminal "uninstalled" state, which in this
// model is represented by row deletion rather than a status value).
func (i *HookInstance) Active() bool {
	return i != nil
}

// UpdateType distinguishes an online registry pull from an uploaded bundle.
type UpdateType string

const (
	UpdateOnline UpdateType = "online"
	UpdateUpload UpdateType = "upload"
)

// UpdateHistory is an append-only row recording one update or rollback
// attempt against an instance.
type UpdateHistory struct {
	InstanceID  string     `json:"instanceId"`
	FromVersion string     `json:"fromVersion"`
	ToVersion   string     `json:"toVersion"`
	UpdateType  UpdateType `json:"updateType"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
	At          time.Time  `json:"at"`
}

// LifecycleEventType enumerates the audit/stream event kinds a HookInstance
// emits as it moves through the state machine.
type LifecycleEventType string

const (
	EventInstalling   LifecycleEventType = "installing"
	EventInstalled    LifecycleEventType = "installed"
	EventStarting     LifecycleEventType = "starting"
	EventStarted      LifecycleEventType = "started"
	EventStopping     LifecycleEventType = "stopping"
	EventStopped      LifecycleEventType = "stopped"
	EventUpdating     LifecycleEventType = "updating"
	EventUpdated      LifecycleEventType = "updated"
	EventUninstalling LifecycleEventType = "uninstalling"
	EventUninstalled  LifecycleEventType = "uninstalled"
	EventError        LifecycleEventType = "error"
	EventHealth       LifecycleEventType = "health"
)

// LifecycleEvent is an append-only audit row, and the payload relayed on the
// per-install-id progress stream (internal/progress).
type LifecycleEvent struct {
	Type       LifecycleEventType `json:"type"`
	InstanceID string             `json:"instanceId"`
	At         time.Time          `json:"at"`
	Data       map[string]any     `json:"data,omitempty"`
}
