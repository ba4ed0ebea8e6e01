package server

import (
	"context"
	"fmt"
	"time"

	"github.com/bryan-buckman/readless/internal/manager"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// pollTimeout bounds one sweep over all feeds.
const pollTimeout = 10 * time.Minute

// Refresher is implemented by manager.Manager.
type Refresher interface {
	RefreshAll(ctx context.Context) []manager.FeedRefresh
}

// Poller refreshes every enabled feed on a cron schedule. A sweep that is
// still running when the next one is due causes that tick to be skipped.
type Poller struct {
	cron    *cron.Cron
	mgr     Refresher
	log     logrus.FieldLogger
	entryID cron.EntryID
}

// NewPoller creates a poller for a standard cron spec, e.g. "*/30 * * * *".
func NewPoller(mgr Refresher, schedule string, log logrus.FieldLogger) (*Poller, error) {
	p := &Poller{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		mgr:  mgr,
		log:  log,
	}
	id, err := p.cron.AddFunc(schedule, p.Poll)
	if err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", schedule, err)
	}
	p.entryID = id
	return p, nil
}

// Start begins the schedule.
func (p *Poller) Start() {
	p.cron.Start()
	p.log.WithField("next", p.NextRun()).Info("Poller started")
}

// Stop stops the schedule and waits for a running sweep to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
}

// NextRun returns when the next sweep is due.
func (p *Poller) NextRun() time.Time {
	return p.cron.Entry(p.entryID).Next
}

// Poll runs one sweep and logs its totals.
func (p *Poller) Poll() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	results := p.mgr.RefreshAll(ctx)
	total, failed := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		total += r.Result.NewEntries
	}
	p.log.WithFields(logrus.Fields{
		"feeds":  len(results),
		"failed": failed,
		"new":    total,
	}).Info("Poller: sweep finished")
}
