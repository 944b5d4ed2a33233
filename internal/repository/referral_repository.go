package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/segyhp/loan-aggregator/internal/domain"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

const uniqueViolation = "23505"

type referralRepository struct {
	db *sqlx.DB
}

func NewReferralRepository(db *sqlx.DB) ReferralRepository {
	return &referralRepository{db: db}
}

func (r *referralRepository) Create(ctx context.Context, link *domain.ReferralLink) error {
	query := `
		INSERT INTO referral_links (id, referrer_id, referee_id, state, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		link.ID,
		link.ReferrerID,
		link.RefereeID,
		link.State,
		link.CreatedAt,
	)
	if err != nil {
		// referral_links_active_referee enforces one active link per referee.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return customError.WrapDuplicateReferral(link.RefereeID, "another referrer")
		}
		return customError.WrapDatabaseError(err)
	}

	return nil
}

func (r *referralRepository) GetLatestByReferee(ctx context.Context, refereeID string) (*domain.ReferralLink, error) {
	query := `
		SELECT id, referrer_id, referee_id, state, COALESCE(application_id, '') AS application_id,
		       reward_amount, created_at, settled_at
		FROM referral_links
		WHERE referee_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var link domain.ReferralLink
	err := r.db.GetContext(ctx, &link, query, refereeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapReferralNotFound(refereeID)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &link, nil
}

func (r *referralRepository) Settle(ctx context.Context, link *domain.ReferralLink, from domain.ReferralState) error {
	query := `
		UPDATE referral_links
		SET state = $2, application_id = $3, reward_amount = $4, settled_at = $5
		WHERE id = $1 AND state = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		link.ID,
		link.State,
		link.ApplicationID,
		link.RewardAmount,
		link.SettledAt,
		from,
	)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if rows == 0 {
		// Lost the race to another settlement, or the link vanished.
		current, err := r.GetLatestByReferee(ctx, link.RefereeID)
		if err != nil {
			return err
		}
		return customError.WrapAlreadySettled(link.RefereeID, string(current.State))
	}

	return nil
}

func (r *referralRepository) CountByReferrer(ctx context.Context, referrerID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM referral_links
		WHERE referrer_id = $1 AND created_at >= $2
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, referrerID, since); err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	return count, nil
}

func (r *referralRepository) GetStats(ctx context.Context, referrerID string) (*domain.ReferralStats, error) {
	query := `
		SELECT $1::text AS referrer_id,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE state = 'PENDING') AS pending,
		       COUNT(*) FILTER (WHERE state = 'EARNED') AS earned,
		       COUNT(*) FILTER (WHERE state = 'VOID') AS void,
		       COALESCE(SUM(reward_amount) FILTER (WHERE state = 'EARNED'), 0) AS earned_rewards
		FROM referral_links
		WHERE referrer_id = $1
	`

	var stats domain.ReferralStats
	if err := r.db.GetContext(ctx, &stats, query, referrerID); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &stats, nil
}

func (r *referralRepository) TopReferrers(ctx context.Context, since time.Time, limit int) ([]domain.TopReferrer, error) {
	query := `
		SELECT referrer_id,
		       COUNT(*) AS referrals,
		       COUNT(*) FILTER (WHERE state = 'EARNED') AS earned,
		       COALESCE(SUM(reward_amount) FILTER (WHERE state = 'EARNED'), 0) AS earned_rewards
		FROM referral_links
		WHERE state <> 'VOID' AND created_at >= $1
		GROUP BY referrer_id
		ORDER BY referrals DESC, referrer_id
		LIMIT $2
	`

	top := []domain.TopReferrer{}
	if err := r.db.SelectContext(ctx, &top, query, since, limit); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return top, nil
}
