package stage

import (
	"context"

	"github.com/hupe1980/researchmesh/core"
)

// Stage executes one step of the research workflow against the session's
// state. Execute must only return an error for unexpected failures;
// recoverable problems are degraded into a routing decision on the state.
type Stage interface {
	// Name returns a short stable identifier used in logs and status.
	Name() string

	// Execute runs the stage, mutating state in place.
	Execute(ctx context.Context, state *core.ResearchState) error
}
