package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-aggregator/internal/offers"
	"github.com/segyhp/loan-aggregator/internal/repository"
)

// FeedSync copies a partner feed into the partner_rules table so that servers
// using the database source pick it up on their next reload. Partners that
// left the feed are disabled, never deleted.
type FeedSync struct {
	source offers.Source
	store  repository.PartnerRuleRepository
	log    *logrus.Logger
}

func NewFeedSync(source offers.Source, store repository.PartnerRuleRepository, log *logrus.Logger) *FeedSync {
	return &FeedSync{source: source, store: store, log: log}
}

// Run performs one sync. Partners whose rules cannot be stored are skipped
// and stay as they were in the table.
func (f *FeedSync) Run(ctx context.Context) (synced int, err error) {
	rules, err := f.source.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load partner feed: %w", err)
	}

	// Validate ids before touching the table.
	if _, err := offers.NewSnapshot(rules, time.Time{}); err != nil {
		return 0, err
	}

	keep := make([]string, 0, len(rules))
	for position, rule := range rules {
		keep = append(keep, rule.PartnerID)
		if err := f.store.Upsert(ctx, rule, position, true); err != nil {
			f.log.WithError(err).WithField("partner_id", rule.PartnerID).Warn("Partner rule not synced")
			continue
		}
		synced++
	}

	disabled, err := f.store.DisableExcept(ctx, keep)
	if err != nil {
		return synced, fmt.Errorf("disable removed partners: %w", err)
	}

	f.log.WithFields(logrus.Fields{
		"synced":   synced,
		"skipped":  len(rules) - synced,
		"disabled": disabled,
	}).Info("Partner feed synced")
	return synced, nil
}

// Schedule registers the sync on c under spec.
func (f *FeedSync) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if _, err := f.Run(ctx); err != nil {
			f.log.WithError(err).Error("Partner feed sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid partner sync schedule %q: %w", spec, err)
	}
	return nil
}
