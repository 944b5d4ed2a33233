package referral

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/repository"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

var _ repository.ReferralRepository = (*MemoryStore)(nil)

// MemoryStore is an in-process ReferralRepository.
type MemoryStore struct {
	mu        sync.RWMutex
	byReferee map[string][]domain.ReferralLink
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byReferee: make(map[string][]domain.ReferralLink)}
}

func (s *MemoryStore) Create(_ context.Context, link *domain.ReferralLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	links := s.byReferee[link.RefereeID]
	for _, existing := range links {
		if existing.State.Active() {
			return customError.WrapDuplicateReferral(link.RefereeID, existing.ReferrerID)
		}
	}
	s.byReferee[link.RefereeID] = append(links, *link)
	return nil
}

func (s *MemoryStore) GetLatestByReferee(_ context.Context, refereeID string) (*domain.ReferralLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := s.byReferee[refereeID]
	if len(links) == 0 {
		return nil, customError.WrapReferralNotFound(refereeID)
	}
	latest := links[len(links)-1]
	return &latest, nil
}

func (s *MemoryStore) Settle(_ context.Context, link *domain.ReferralLink, from domain.ReferralState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	links := s.byReferee[link.RefereeID]
	for i := range links {
		if links[i].ID != link.ID {
			continue
		}
		if links[i].State != from {
			return customError.WrapAlreadySettled(link.RefereeID, string(links[i].State))
		}
		links[i].State = link.State
		links[i].ApplicationID = link.ApplicationID
		links[i].RewardAmount = link.RewardAmount
		links[i].SettledAt = link.SettledAt
		return nil
	}
	return customError.WrapReferralNotFound(link.RefereeID)
}

func (s *MemoryStore) CountByReferrer(_ context.Context, referrerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, links := range s.byReferee {
		for _, link := range links {
			if link.ReferrerID == referrerID && !link.CreatedAt.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

func (s *MemoryStore) GetStats(_ context.Context, referrerID string) (*domain.ReferralStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.ReferralStats{ReferrerID: referrerID, EarnedRewards: decimal.Zero}
	for _, links := range s.byReferee {
		for _, link := range links {
			if link.ReferrerID != referrerID {
				continue
			}
			stats.Total++
			switch link.State {
			case domain.ReferralPending:
				stats.Pending++
			case domain.ReferralEarned:
				stats.Earned++
				if link.RewardAmount.Valid {
					stats.EarnedRewards = stats.EarnedRewards.Add(link.RewardAmount.Decimal)
				}
			case domain.ReferralVoid:
				stats.Void++
			}
		}
	}
	return stats, nil
}

func (s *MemoryStore) TopReferrers(_ context.Context, since time.Time, limit int) ([]domain.TopReferrer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byReferrer := make(map[string]*domain.TopReferrer)
	for _, links := range s.byReferee {
		for _, link := range links {
			if !link.State.Active() || link.CreatedAt.Before(since) {
				continue
			}
			row, ok := byReferrer[link.ReferrerID]
			if !ok {
				row = &domain.TopReferrer{ReferrerID: link.ReferrerID, EarnedRewards: decimal.Zero}
				byReferrer[link.ReferrerID] = row
			}
			row.Referrals++
			if link.State == domain.ReferralEarned {
				row.Earned++
				if link.RewardAmount.Valid {
					row.EarnedRewards = row.EarnedRewards.Add(link.RewardAmount.Decimal)
				}
			}
		}
	}

	top := make([]domain.TopReferrer, 0, len(byReferrer))
	for _, row := range byReferrer {
		top = append(top, *row)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Referrals != top[j].Referrals {
			return top[i].Referrals > top[j].Referrals
		}
		return top[i].ReferrerID < top[j].ReferrerID
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}
