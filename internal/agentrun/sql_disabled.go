//go:build !sqlprobe

package agentrun

import (
	"context"
	"fmt"

	"github.com/netprobe/fleet/internal/models"
)

// runSql returns an error when the agent wasn't built with the
// sqlprobe tag (spec.md §9). Task loading does not reject sql_query
// tasks in that build, so they reach the scheduler and every run of
// one fails here.
func (r *Runner) runSql(ctx context.Context, task models.TaskConfig) error {
	return fmt.Errorf("sql_query task %q configured but this agent was not built with sql probe support", task.Name)
}
