package config

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/offers"
)

// FileSource reads partner rules from a YAML (or JSON) file with a top-level
// "partners" list. The file is read again on every Load.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load(ctx context.Context) ([]domain.PartnerOfferRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(s.Path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read partner feed %s: %w", s.Path, err)
	}

	var docs []offers.RuleDocument
	if err := v.UnmarshalKey("partners", &docs); err != nil {
		return nil, fmt.Errorf("unable to decode partner feed %s: %w", s.Path, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("partner feed %s lists no partners", s.Path)
	}

	rules := make([]domain.PartnerOfferRule, 0, len(docs))
	for _, doc := range docs {
		rules = append(rules, doc.Rule())
	}
	return rules, nil
}
