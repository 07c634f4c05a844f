package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/gateway"
)

// CronAdapter bridges internal/cron.Engine to gateway.CronStore. The two
// packages use different field shapes on purpose — cron.Job carries the
// sessionKey/prompt/lastRunAt bookkeeping a running engine needs, while
// gateway.CronJob is the minimal wire shape control-plane clients see — so
// this adapter lives outside both rather than letting either package depend
// on the other.
type CronAdapter struct {
	engine     *cron.Engine
	sessionKey string // forced-sync target every cron.* job runs against
}

// NewCronAdapter builds a CronAdapter. Every job added through the control
// plane is scheduled against sessionKey (typically the agent's main session)
// since gateway.CronJob has no per-job session field.
func NewCronAdapter(engine *cron.Engine, sessionKey string) *CronAdapter {
	return &CronAdapter{engine: engine, sessionKey: sessionKey}
}

func (a *CronAdapter) List() []gateway.CronJob {
	jobs := a.engine.List()
	out := make([]gateway.CronJob, len(jobs))
	for i, j := range jobs {
		out[i] = gateway.CronJob{ID: j.ID, Schedule: j.Expr, Message: j.Prompt, Enabled: j.Enabled}
	}
	return out
}

func (a *CronAdapter) Add(job gateway.CronJob) (gateway.CronJob, error) {
	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	j := cron.Job{
		ID:         id,
		Name:       id,
		Expr:       job.Schedule,
		SessionKey: a.sessionKey,
		Prompt:     job.Message,
		Enabled:    job.Enabled,
	}
	if err := a.engine.Add(j); err != nil {
		return gateway.CronJob{}, err
	}
	return gateway.CronJob{ID: id, Schedule: job.Schedule, Message: job.Message, Enabled: job.Enabled}, nil
}

func (a *CronAdapter) Remove(id string) error {
	return a.engine.Remove(id)
}

func (a *CronAdapter) RunNow(id string) error {
	return a.engine.RunNow(context.Background(), id)
}
