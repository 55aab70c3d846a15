// Package classify scores announcement titles against ordered keyword tiers.
// Each tier holds conjunctive positive-term groups and negative terms; the
// first tier that matches names the record's precision bucket.
package classify

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/disclosure-cli/internal/normalize"
)

// Tier is one precision bucket. A tier matches when every term of at least
// one Groups entry appears in the title and no Negative term does.
type Tier struct {
	// Name labels the bucket, e.g. "tier1".
	Name string `yaml:"name"`

	// Groups are positive-term groups. Terms within a group are conjunctive;
	// groups themselves are alternatives.
	Groups [][]string `yaml:"groups"`

	// Negative terms disqualify the tier even when a group matched.
	Negative []string `yaml:"negative,omitempty"`
}

// Result is the classification outcome for one title. MatchedKeywords is the
// union of positive terms found across all evaluated tiers, kept for
// traceability even when a higher tier already decided the bucket. An empty
// Tier means not relevant, which is the common case, not an error.
type Result struct {
	MatchedKeywords []string
	Tier            string
}

// Classify evaluates tiers in priority order against title. Matching is
// case-insensitive substring matching over width-folded text, so half-width
// and full-width spellings of the same token are equivalent.
func Classify(title string, tiers []Tier) Result {
	folded := normalize.Fold(title)

	var res Result
	seen := map[string]bool{}
	for _, tier := range tiers {
		matched := false
		for _, group := range tier.Groups {
			all := true
			for _, term := range group {
				if strings.Contains(folded, normalize.Fold(term)) {
					if !seen[term] {
						seen[term] = true
						res.MatchedKeywords = append(res.MatchedKeywords, term)
					}
				} else {
					all = false
				}
			}
			if all && len(group) > 0 {
				matched = true
			}
		}

		if !matched {
			continue
		}
		for _, neg := range tier.Negative {
			if strings.Contains(folded, normalize.Fold(neg)) {
				matched = false
				break
			}
		}
		if matched && res.Tier == "" {
			res.Tier = tier.Name
		}
	}

	if res.Tier == "" {
		res.MatchedKeywords = nil
	}
	return res
}

// LoadTiers reads a tier configuration from a YAML file.
func LoadTiers(path string) ([]Tier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read tiers file %s", path)
	}
	var cfg struct {
		Tiers []Tier `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, eris.Wrapf(err, "classify: parse tiers file %s", path)
	}
	if len(cfg.Tiers) == 0 {
		return nil, eris.Errorf("classify: no tiers defined in %s", path)
	}
	for i, t := range cfg.Tiers {
		if t.Name == "" {
			return nil, eris.Errorf("classify: tier %d has no name in %s", i, path)
		}
		if len(t.Groups) == 0 {
			return nil, eris.Errorf("classify: tier %q has no positive groups in %s", t.Name, path)
		}
	}
	return cfg.Tiers, nil
}

// DefaultTiers returns the built-in placement-detection tiers, ordered from
// highest precision to lowest. Tier one catches explicit third-party
// allotment notices, tier two new share or warrant issuance announcements,
// tier three allottee decisions.
func DefaultTiers() []Tier {
	return []Tier{
		{
			Name: "tier1",
			Groups: [][]string{
				{"第三者割当", "発行に関するお知らせ"},
				{"第三者割当", "募集に関するお知らせ"},
				{"placement", "third party allotment"},
			},
		},
		{
			Name: "tier2",
			Groups: [][]string{
				{"新株式", "発行"},
				{"新株予約権", "発行"},
				{"share placement"},
				{"appendix 5b"},
			},
			Negative: []string{"払込完了", "completion of payment"},
		},
		{
			Name: "tier3",
			Groups: [][]string{
				{"割当先決定"},
				{"proposed issue of securities"},
			},
		},
	}
}
