// Package agentrun wires the scheduler to the probe executors and the
// local store: Run dispatches a TaskConfig to the right probe
// function and persists whatever sample comes back.
package agentrun

import (
	"context"
	"fmt"

	"github.com/netprobe/fleet/internal/localstore"
	"github.com/netprobe/fleet/internal/models"
	"github.com/netprobe/fleet/internal/probe"
)

// Runner implements scheduler.Runner against a local store and an
// optional bandwidth client (only needed when bandwidth tasks are
// configured).
type Runner struct {
	Store     *localstore.Store
	Bandwidth *probe.BandwidthClient
}

func New(store *localstore.Store, bw *probe.BandwidthClient) *Runner {
	return &Runner{Store: store, Bandwidth: bw}
}

// Run executes task's probe and inserts the resulting raw sample,
// dispatching on task.Type (spec.md §4.1, §4.3).
func (r *Runner) Run(ctx context.Context, task models.TaskConfig) error {
	switch task.Type {
	case models.TaskPing:
		return r.insert(ctx, probe.Ping(ctx, task))
	case models.TaskTcp:
		return r.insert(ctx, probe.Tcp(ctx, task))
	case models.TaskTlsHandshake:
		return r.insert(ctx, probe.TlsHandshake(ctx, task, task.Params.TlsInsecureSkipVerify))
	case models.TaskHttpGet:
		return r.insert(ctx, probe.HttpGet(ctx, task))
	case models.TaskHttpContent:
		sample, err := probe.HttpContent(ctx, task)
		if err != nil {
			return fmt.Errorf("http_content probe %q: %w", task.Name, err)
		}
		return r.insert(ctx, sample)
	case models.TaskDnsQuery:
		return r.insert(ctx, probe.DnsQuery(ctx, task))
	case models.TaskDnsQueryDoh:
		return r.insert(ctx, probe.DnsQueryDoh(ctx, task))
	case models.TaskSnmp:
		return r.insert(ctx, probe.Snmp(ctx, task))
	case models.TaskBandwidth:
		if r.Bandwidth == nil {
			return fmt.Errorf("bandwidth task %q configured but no bandwidth client wired", task.Name)
		}
		return r.insert(ctx, r.Bandwidth.Run(ctx, task))
	case models.TaskSqlQuery:
		return r.runSql(ctx, task)
	default:
		return fmt.Errorf("unknown task type %q for task %q", task.Type, task.Name)
	}
}

func (r *Runner) insert(ctx context.Context, sample any) error {
	_, err := r.Store.InsertRaw(ctx, sample)
	return err
}
