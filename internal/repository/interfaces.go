package repository

import (
	"context"
	"time"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

// ReferralRepository defines the interface for referral link storage
type ReferralRepository interface {
	// Create stores a new link. It fails with ErrDuplicateReferral when the
	// referee already has an active link.
	Create(ctx context.Context, link *domain.ReferralLink) error

	// GetLatestByReferee retrieves the most recent link of a referee
	GetLatestByReferee(ctx context.Context, refereeID string) (*domain.ReferralLink, error)

	// Settle writes the settled link only if its stored state is still from.
	// A link that already left from yields ErrAlreadySettled.
	Settle(ctx context.Context, link *domain.ReferralLink, from domain.ReferralState) error

	// CountByReferrer counts links created by a referrer since the given time
	CountByReferrer(ctx context.Context, referrerID string, since time.Time) (int, error)

	// GetStats aggregates a referrer's links per state
	GetStats(ctx context.Context, referrerID string) (*domain.ReferralStats, error)

	// TopReferrers ranks referrers by active links created since the given
	// time, most first, ties by referrer id
	TopReferrers(ctx context.Context, since time.Time, limit int) ([]domain.TopReferrer, error)
}

// PartnerRuleRepository defines the interface for the partner rule feed
type PartnerRuleRepository interface {
	// Load returns the enabled partner rules in configuration order
	Load(ctx context.Context) ([]domain.PartnerOfferRule, error)

	// Upsert stores or replaces a partner rule at the given feed position
	Upsert(ctx context.Context, rule domain.PartnerOfferRule, position int, enabled bool) error

	// DisableExcept disables every enabled partner not listed in keep
	DisableExcept(ctx context.Context, keep []string) (int64, error)
}
