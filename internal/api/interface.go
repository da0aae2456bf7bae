package api

import (
	"context"

	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/logbuf"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

//go:generate mockgen -destination=mocks/mock_supervisor.go -package=mocks github.com/mattjoyce/devdeck/internal/api ProjectSupervisor,RunLister

// ProjectSupervisor is the lifecycle surface the API drives.
type ProjectSupervisor interface {
	Rescan() []supervisor.Project
	Project(id string) (supervisor.Project, error)
	Counts() (known, online int)
	Start(ctx context.Context, id string, port int) (supervisor.Project, error)
	Stop(ctx context.Context, id string) error
	LogBuffer(id string) *logbuf.Buffer
}

// RunLister reads run history.
type RunLister interface {
	ListRuns(ctx context.Context, projectID string, limit int) ([]history.Run, error)
}
