package offers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/segyhp/loan-aggregator/internal/domain"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

// Snapshot is an immutable, versioned set of partner rules. Two snapshots
// built from the same rules share the same Version.
type Snapshot struct {
	Version  string
	LoadedAt time.Time
	rules    []domain.PartnerOfferRule
}

// NewSnapshot copies rules into a new snapshot. Partner ids must be unique and
// non-empty; everything else is checked per partner at aggregation time.
func NewSnapshot(rules []domain.PartnerOfferRule, loadedAt time.Time) (*Snapshot, error) {
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		if rule.PartnerID == "" {
			return nil, customError.WrapInvalidPolicy(fmt.Sprintf("partner rule %d has no id", i))
		}
		if _, dup := seen[rule.PartnerID]; dup {
			return nil, customError.WrapInvalidPolicy(fmt.Sprintf("partner %s is configured twice", rule.PartnerID))
		}
		seen[rule.PartnerID] = struct{}{}
	}

	copied := make([]domain.PartnerOfferRule, len(rules))
	for i, rule := range rules {
		rule.ExcludedEmployment = append([]domain.EmploymentCategory(nil), rule.ExcludedEmployment...)
		copied[i] = rule
	}

	return &Snapshot{
		Version:  fingerprint(copied),
		LoadedAt: loadedAt,
		rules:    copied,
	}, nil
}

// Rules returns a copy of the snapshot's rules in configuration order.
func (s *Snapshot) Rules() []domain.PartnerOfferRule {
	return append([]domain.PartnerOfferRule(nil), s.rules...)
}

func (s *Snapshot) Len() int {
	return len(s.rules)
}

func fingerprint(rules []domain.PartnerOfferRule) string {
	h := xxhash.New()
	for _, r := range rules {
		var b strings.Builder
		b.WriteString(r.PartnerID)
		b.WriteByte('|')
		b.WriteString(r.Name)
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(r.Priority))
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(r.MinScore))
		b.WriteByte('|')
		b.WriteString(r.MaxDebtBurden.String())
		b.WriteByte('|')
		if r.MaxProjectedDebtBurden.Valid {
			b.WriteString(r.MaxProjectedDebtBurden.Decimal.String())
		}
		b.WriteByte('|')
		for _, c := range r.ExcludedEmployment {
			b.WriteString(string(c))
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "|%s|%s|%d|%d|", r.MinAmount, r.MaxAmount, r.MinTermMonths, r.MaxTermMonths)
		switch p := r.Pricing.(type) {
		case nil:
		case interface{ Fingerprint() string }:
			b.WriteString(p.Fingerprint())
		default:
			fmt.Fprintf(&b, "%T", p)
		}
		b.WriteByte('\n')
		_, _ = h.WriteString(b.String())
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Source provides the full ordered partner rule feed.
type Source interface {
	Load(ctx context.Context) ([]domain.PartnerOfferRule, error)
}

// Registry publishes the current partner snapshot. Reloads replace the whole
// snapshot, so readers always see one consistent rule set.
type Registry struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

// Current returns the active snapshot, or ErrPartnersUnavailable before the
// first successful load.
func (r *Registry) Current() (*Snapshot, error) {
	snapshot := r.current.Load()
	if snapshot == nil {
		return nil, customError.WrapPartnersUnavailable()
	}
	return snapshot, nil
}

// Swap installs snapshot and returns the previous one.
func (r *Registry) Swap(snapshot *Snapshot) *Snapshot {
	return r.current.Swap(snapshot)
}

// Reload loads the feed and swaps it in. The previous snapshot stays active on
// error. changed is false when the feed content did not change.
func (r *Registry) Reload(ctx context.Context, source Source) (snapshot *Snapshot, changed bool, err error) {
	rules, err := source.Load(ctx)
	if err != nil {
		return nil, false, err
	}

	snapshot, err = NewSnapshot(rules, r.now())
	if err != nil {
		return nil, false, err
	}

	previous := r.Swap(snapshot)
	return snapshot, previous == nil || previous.Version != snapshot.Version, nil
}
