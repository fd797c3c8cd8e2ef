// Package stage holds the result model shared by every step of a sync run.
package stage

import "time"

// Name identifies a pipeline stage.
type Name string

const (
	Authentication Name = "authentication"
	PortRequest    Name = "port_request"
	QBittorrent    Name = "qbittorrent"
	DockerEnv      Name = "docker_env"
	Restart        Name = "container_restart"
	Notification   Name = "notification"
)

// Label returns a human readable name for notifications
func (n Name) Label() string {
	switch n {
	case Authentication:
		return "portal login"
	case PortRequest:
		return "new windscribe port"
	case QBittorrent:
		return "update qbittorrent port"
	case DockerEnv:
		return "update docker env"
	case Restart:
		return "restart docker containers"
	case Notification:
		return "notification"
	}
	return string(n)
}

// Status is the outcome of a single stage.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result captures what one stage did.
type Result struct {
	Stage    Name          `json:"stage"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Success builds a successful result.
func Success(name Name, detail string) Result {
	return Result{Stage: name, Status: StatusSuccess, Detail: detail}
}

// Skipped builds a result for a stage that had nothing to do.
func Skipped(name Name, detail string) Result {
	return Result{Stage: name, Status: StatusSkipped, Detail: detail}
}

// Failed builds a failed result from err.
func Failed(name Name, err error) Result {
	r := Result{Stage: name, Status: StatusFailed}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Marker returns the status glyph used in chat notifications.
func (r Result) Marker() string {
	switch r.Status {
	case StatusSuccess:
		return "✅"
	case StatusSkipped:
		return "➖"
	}
	return "❌"
}
