//go:build sqlprobe

package agentrun

import (
	"context"

	"github.com/netprobe/fleet/internal/models"
	"github.com/netprobe/fleet/internal/probe"
)

func (r *Runner) runSql(ctx context.Context, task models.TaskConfig) error {
	return r.insert(ctx, probe.SqlQuery(ctx, task))
}
