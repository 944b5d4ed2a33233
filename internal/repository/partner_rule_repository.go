package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/offers"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

type partnerRuleRepository struct {
	db *sqlx.DB
}

func NewPartnerRuleRepository(db *sqlx.DB) PartnerRuleRepository {
	return &partnerRuleRepository{db: db}
}

type partnerRuleRow struct {
	PartnerID string `db:"partner_id"`
	Document  []byte `db:"document"`
}

// Load implements offers.Source.
func (r *partnerRuleRepository) Load(ctx context.Context) ([]domain.PartnerOfferRule, error) {
	query := `
		SELECT partner_id, document
		FROM partner_rules
		WHERE enabled
		ORDER BY position, partner_id
	`

	var rows []partnerRuleRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	rules := make([]domain.PartnerOfferRule, 0, len(rows))
	for _, row := range rows {
		var doc offers.RuleDocument
		if err := json.Unmarshal(row.Document, &doc); err != nil {
			// Keep the partner visible; aggregation reports it as malformed.
			rules = append(rules, domain.PartnerOfferRule{
				PartnerID: row.PartnerID,
				Pricing:   offers.InvalidPricing{Err: err},
			})
			continue
		}
		doc.PartnerID = row.PartnerID
		rules = append(rules, doc.Rule())
	}

	return rules, nil
}

func (r *partnerRuleRepository) Upsert(ctx context.Context, rule domain.PartnerOfferRule, position int, enabled bool) error {
	doc, err := offers.NewRuleDocument(rule)
	if err != nil {
		return customError.WrapInvalidInput(err.Error())
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return customError.WrapInvalidInput(err.Error())
	}

	query := `
		INSERT INTO partner_rules (partner_id, position, document, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (partner_id) DO UPDATE
		SET position = EXCLUDED.position, document = EXCLUDED.document,
		    enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.PartnerID,
		position,
		string(payload),
		enabled,
		time.Now(),
	)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	return nil
}

func (r *partnerRuleRepository) DisableExcept(ctx context.Context, keep []string) (int64, error) {
	query := `
		UPDATE partner_rules
		SET enabled = FALSE, updated_at = $2
		WHERE enabled AND NOT (partner_id = ANY($1))
	`

	result, err := r.db.ExecContext(ctx, query, pq.Array(keep), time.Now())
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	disabled, err := result.RowsAffected()
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}
	return disabled, nil
}
