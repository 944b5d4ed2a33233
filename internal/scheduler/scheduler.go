package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-aggregator/internal/offers"
)

const reloadTimeout = 30 * time.Second

// Reloader swaps in a freshly loaded partner snapshot.
type Reloader interface {
	ReloadPartners(ctx context.Context) (*offers.Snapshot, bool, error)
}

// Scheduler periodically reloads the partner registry. A failed reload keeps
// the previous snapshot serving.
type Scheduler struct {
	cron     *cron.Cron
	reloader Reloader
	log      *logrus.Logger
}

// New schedules the reload job. spec is a standard five-field cron
// expression or a descriptor such as "@every 5m".
func New(reloader Reloader, spec string, log *logrus.Logger) (*Scheduler, error) {
	cronLogger := cron.PrintfLogger(log)
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		reloader: reloader,
		log:      log,
	}

	if _, err := s.cron.AddFunc(spec, s.reload); err != nil {
		return nil, fmt.Errorf("invalid partner reload schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Partner reload scheduler started")
}

// Stop waits for a running reload to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Partner reload scheduler stopped")
}

func (s *Scheduler) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	snapshot, changed, err := s.reloader.ReloadPartners(ctx)
	if err != nil {
		s.log.WithError(err).Error("Partner reload failed, keeping previous snapshot")
		return
	}
	if changed {
		s.log.WithFields(logrus.Fields{
			"version":  snapshot.Version,
			"partners": snapshot.Len(),
		}).Info("Partner snapshot replaced")
	}
}
