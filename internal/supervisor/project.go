package supervisor

import (
	"errors"

	"github.com/mattjoyce/devdeck/internal/detect"
)

// Status is the lifecycle state of a project.
type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
)

var (
	ErrNotFound        = errors.New("project not found")
	ErrPortInUse       = errors.New("port in use")
	ErrUnsupportedType = errors.New("unsupported project type")
	ErrInvalidPort     = errors.New("invalid port")
)

// Project is a discovered application directory. Values handed out by the
// Supervisor are copies.
type Project struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Path   string      `json:"path"`
	Type   detect.Type `json:"type"`
	Status Status      `json:"status"`
	Port   int         `json:"port"`
	PID    *int        `json:"pid"`
}

// Online reports whether the project has a live process.
func (p Project) Online() bool {
	return p.Status == StatusOnline
}

func (p Project) clone() Project {
	if p.PID != nil {
		pid := *p.PID
		p.PID = &pid
	}
	return p
}
