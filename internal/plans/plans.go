// Package plans holds the subscription tier catalogue and its quotas.
package plans

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Unlimited is the sentinel quota for "no limit".
const Unlimited = 9999

// DefaultTier is assigned to new teams.
const DefaultTier = "starter"

// FeatureImports gates CSV and JSON imports.
const FeatureImports = "imports"

// Plan describes the quotas of one tier.
type Plan struct {
	Tier           string   `yaml:"-" json:"tier"`
	Name           string   `yaml:"name" json:"name"`
	MaxProperties  int      `yaml:"max_properties" json:"max_properties"`
	MaxLeases      int      `yaml:"max_leases" json:"max_leases"`
	MaxTeamMembers int      `yaml:"max_team_members" json:"max_team_members"`
	Features       []string `yaml:"features" json:"features"`
}

// HasFeature reports whether the plan includes feature.
func (p Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Allows reports whether current+1 still fits within limit.
func Allows(limit, current int) bool {
	return limit >= Unlimited || current < limit
}

//go:embed plans.yaml
var catalogueYAML []byte

var catalogue = mustParse(catalogueYAML)

func parse(data []byte) (map[string]Plan, error) {
	raw := map[string]Plan{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	for tier, p := range raw {
		p.Tier = tier
		raw[tier] = p
	}
	return raw, nil
}

func mustParse(data []byte) map[string]Plan {
	c, err := parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the plan for tier, falling back to the default tier for
// unknown names.
func Get(tier string) Plan {
	if p, ok := catalogue[tier]; ok {
		return p
	}
	return catalogue[DefaultTier]
}

// All lists plans ordered by property quota.
func All() []Plan {
	out := make([]Plan, 0, len(catalogue))
	for _, p := range catalogue {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaxProperties < out[j].MaxProperties })
	return out
}
