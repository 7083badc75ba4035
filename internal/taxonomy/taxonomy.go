// Package taxonomy defines the closed set of behavioural trackers that every
// transcript sentence is classified against, and the thresholds used to turn
// per-tracker phrase counts into qualitative labels.
package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one tracker in the taxonomy, or None.
type Category string

const (
	Introduction        Category = "introduction"
	RapportBuilding     Category = "rapport-building"
	NeedsDiscovery      Category = "needs-discovery"
	ProductPresentation Category = "product-presentation"
	PricingQuestions    Category = "pricing-questions"
	ObjectionHandling   Category = "objection-handling"
	Closing             Category = "closing"

	// None marks a sentence that belongs to no tracker.
	None Category = "none"
)

// Label is the qualitative outcome assigned to a tracker.
type Label string

const (
	LabelGreat            Label = "Great"
	LabelStrongExecution  Label = "Strong Execution"
	LabelNeedsImprovement Label = "Needs Improvement"
	LabelMissed           Label = "Missed"
)

// ValidLabel reports whether l is one of the four tracker labels.
func ValidLabel(l Label) bool {
	switch l {
	case LabelGreat, LabelStrongExecution, LabelNeedsImprovement, LabelMissed:
		return true
	}
	return false
}

// Definition describes a single tracker.
type Definition struct {
	ID          Category `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	// GoodThreshold is the phrase count at which a tracker stops being
	// "Needs Improvement".
	GoodThreshold int `yaml:"good"`
	// GreatThreshold is the phrase count considered excellent execution.
	GreatThreshold int `yaml:"great"`
	// TopLabel is the label awarded at or above GoodThreshold.
	TopLabel Label `yaml:"top_label"`
}

// Taxonomy is an ordered, immutable set of tracker definitions.
type Taxonomy struct {
	defs []Definition
	byID map[Category]Definition
}

var defaultDefinitions = []Definition{
	{
		ID:             Introduction,
		Name:           "Introduction",
		Description:    "The rep introduces themselves, their company and the purpose of the call.",
		GoodThreshold:  1,
		GreatThreshold: 2,
		TopLabel:       LabelGreat,
	},
	{
		ID:             RapportBuilding,
		Name:           "Rapport Building",
		Description:    "Small talk, empathy, personal connection and acknowledging the prospect's situation.",
		GoodThreshold:  2,
		GreatThreshold: 4,
		TopLabel:       LabelGreat,
	},
	{
		ID:             NeedsDiscovery,
		Name:           "Needs Discovery",
		Description:    "Open questions that uncover the prospect's goals, pains, timeline and decision process.",
		GoodThreshold:  3,
		GreatThreshold: 5,
		TopLabel:       LabelStrongExecution,
	},
	{
		ID:             ProductPresentation,
		Name:           "Product Presentation",
		Description:    "Explaining features and benefits tied back to the needs the prospect expressed.",
		GoodThreshold:  2,
		GreatThreshold: 4,
		TopLabel:       LabelStrongExecution,
	},
	{
		ID:             PricingQuestions,
		Name:           "Pricing Questions",
		Description:    "Questions or statements about price, budget, payment terms or packages.",
		GoodThreshold:  1,
		GreatThreshold: 3,
		TopLabel:       LabelGreat,
	},
	{
		ID:             ObjectionHandling,
		Name:           "Objection Handling",
		Description:    "Acknowledging and resolving concerns, hesitations or pushback from the prospect.",
		GoodThreshold:  1,
		GreatThreshold: 3,
		TopLabel:       LabelStrongExecution,
	},
	{
		ID:             Closing,
		Name:           "Closing",
		Description:    "Asking for the commitment, agreeing next steps or booking the follow-up.",
		GoodThreshold:  1,
		GreatThreshold: 2,
		TopLabel:       LabelStrongExecution,
	},
}

// Default returns the built-in seven-tracker taxonomy.
func Default() *Taxonomy {
	t, err := build(defaultDefinitions)
	if err != nil {
		panic(err)
	}
	return t
}

type overrideFile struct {
	Categories []Definition `yaml:"categories"`
}

// Load returns the default taxonomy with descriptions and thresholds from the
// YAML file at path applied on top. An empty path returns Default(). The file
// may only tune existing trackers; the category set itself is fixed.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return Parse(data)
}

// Parse applies a YAML override document to the default taxonomy.
func Parse(data []byte) (*Taxonomy, error) {
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}

	defs := make([]Definition, len(defaultDefinitions))
	copy(defs, defaultDefinitions)
	index := make(map[Category]int, len(defs))
	for i, d := range defs {
		index[d.ID] = i
	}

	for _, o := range f.Categories {
		i, ok := index[o.ID]
		if !ok {
			return nil, fmt.Errorf("unknown tracker %q in taxonomy file", o.ID)
		}
		d := defs[i]
		if o.Name != "" {
			d.Name = o.Name
		}
		if o.Description != "" {
			d.Description = o.Description
		}
		if o.GoodThreshold != 0 {
			d.GoodThreshold = o.GoodThreshold
		}
		if o.GreatThreshold != 0 {
			d.GreatThreshold = o.GreatThreshold
		}
		if o.TopLabel != "" {
			d.TopLabel = o.TopLabel
		}
		defs[i] = d
	}
	return build(defs)
}

func build(defs []Definition) (*Taxonomy, error) {
	t := &Taxonomy{
		defs: defs,
		byID: make(map[Category]Definition, len(defs)),
	}
	for _, d := range defs {
		if d.GoodThreshold < 1 {
			return nil, fmt.Errorf("tracker %s: good threshold must be at least 1", d.ID)
		}
		if d.GreatThreshold < d.GoodThreshold {
			return nil, fmt.Errorf("tracker %s: great threshold %d below good threshold %d", d.ID, d.GreatThreshold, d.GoodThreshold)
		}
		if d.TopLabel != LabelGreat && d.TopLabel != LabelStrongExecution {
			return nil, fmt.Errorf("tracker %s: top label must be %q or %q", d.ID, LabelGreat, LabelStrongExecution)
		}
		t.byID[d.ID] = d
	}
	return t, nil
}

// Categories returns the trackers in taxonomy order, excluding None.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.defs))
	for i, d := range t.defs {
		out[i] = d.ID
	}
	return out
}

// Definitions returns a copy of the tracker definitions in taxonomy order.
func (t *Taxonomy) Definitions() []Definition {
	out := make([]Definition, len(t.defs))
	copy(out, t.defs)
	return out
}

// Lookup returns the definition for c.
func (t *Taxonomy) Lookup(c Category) (Definition, bool) {
	d, ok := t.byID[c]
	return d, ok
}

// Valid reports whether c is a tracker or None.
func (t *Taxonomy) Valid(c Category) bool {
	if c == None {
		return true
	}
	_, ok := t.byID[c]
	return ok
}

// Normalize maps loosely formatted model output ("Rapport Building",
// "pricing_questions") onto a category. Unknown values report false.
func (t *Taxonomy) Normalize(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	c := Category(s)
	if t.Valid(c) {
		return c, true
	}
	for _, d := range t.defs {
		if strings.EqualFold(strings.ReplaceAll(d.Name, " ", "-"), s) {
			return d.ID, true
		}
	}
	return None, false
}
