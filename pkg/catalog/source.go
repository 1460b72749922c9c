package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticSource serves a fixed plan map, mostly used in tests and the seeded
// defaults below.
type StaticSource map[string]Plan

func (s StaticSource) Load(_ context.Context) (map[string]Plan, error) {
	return s, nil
}

// YAMLSource loads plan definitions from a YAML file:
//
//	- id: free
//	  name: Free
//	  interval: none
//	  ceilings:
//	    note: 50
//	    task: 100
//	    galaxy: 1
//	    aiInsight: 3
type YAMLSource struct {
	Path string
}

type yamlPlan struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Interval string           `yaml:"interval"`
	Ceilings map[string]int64 `yaml:"ceilings"`
}

func (s YAMLSource) Load(_ context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read plan file %s: %w", s.Path, err)
	}

	var entries []yamlPlan
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", s.Path, err)
	}
	if len(entries) == 0 {
		return nil, errors.New("plan file contains no plans")
	}

	plans := make(map[string]Plan, len(entries))
	for _, e := range entries {
		ceilings := make(map[ResourceKind]int64, len(e.Ceilings))
		for kind, ceiling := range e.Ceilings {
			ceilings[ResourceKind(kind)] = ceiling
		}
		plans[e.ID] = Plan{
			ID:       e.ID,
			Name:     e.Name,
			Interval: BillingInterval(e.Interval),
			Ceilings: ceilings,
		}
	}
	return plans, nil
}

// DefaultPlans is the seeded catalog used when no plan file is configured:
// the implicit free tier plus the two paid tiers known to both providers.
func DefaultPlans() StaticSource {
	return StaticSource{
		"free": {
			ID:       "free",
			Name:     "Free",
			Interval: IntervalNone,
			Ceilings: map[ResourceKind]int64{
				ResourceNote:      50,
				ResourceTask:      100,
				ResourceGalaxy:    1,
				ResourceAIInsight: 3,
			},
		},
		"pro_monthly": {
			ID:       "pro_monthly",
			Name:     "Pro (monthly)",
			Interval: IntervalMonthly,
			Ceilings: map[ResourceKind]int64{
				ResourceNote:      Unlimited,
				ResourceTask:      Unlimited,
				ResourceGalaxy:    20,
				ResourceAIInsight: 50,
			},
		},
		"pro_yearly": {
			ID:       "pro_yearly",
			Name:     "Pro (yearly)",
			Interval: IntervalYearly,
			Ceilings: map[ResourceKind]int64{
				ResourceNote:      Unlimited,
				ResourceTask:      Unlimited,
				ResourceGalaxy:    20,
				ResourceAIInsight: 50,
			},
		},
	}
}
