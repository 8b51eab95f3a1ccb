package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/res"
	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of a recipe file (§6).
type document struct {
	Application struct {
		Name string `yaml:"name"`
	} `yaml:"application"`
	AWMs        []awmDoc        `yaml:"awms"`
	Constraints []constraintDoc `yaml:"constraints,omitempty"`
	Plugins     map[string]map[string]any `yaml:"plugins,omitempty"`
}

type awmDoc struct {
	Name   string     `yaml:"name"`
	Value  int        `yaml:"value"`
	Usages []usageDoc `yaml:"usages"`
}

type usageDoc struct {
	Path   string `yaml:"path"`
	Amount uint64 `yaml:"amount"`
	Units  string `yaml:"units"`
}

type constraintDoc struct {
	Path  string  `yaml:"path"`
	Lower *uint64 `yaml:"lower,omitempty"`
	Upper *uint64 `yaml:"upper,omitempty"`
}

// Loader parses recipe files under a directory root against a fixed
// accounter, caching a recipe's parsed AWM list by name (§4.C: "loads, or
// reuses by recipe name, the recipe").
type Loader struct {
	dir       string
	accounter *res.Accounter

	mu          sync.Mutex
	cache       map[string][]*app.AWM
	weakCache   map[string]bool
	constraints map[string][]app.ConstraintSpec
}

// NewLoader returns a Loader reading *.yaml recipe files from dir.
func NewLoader(dir string, accounter *res.Accounter) *Loader {
	return &Loader{
		dir:         dir,
		accounter:   accounter,
		cache:       make(map[string][]*app.AWM),
		weakCache:   make(map[string]bool),
		constraints: make(map[string][]app.ConstraintSpec),
	}
}

// Load implements appmgr.RecipeLoader.
func (l *Loader) Load(name string) ([]*app.AWM, bool, error) {
	l.mu.Lock()
	if awms, ok := l.cache[name]; ok {
		weak := l.weakCache[name]
		l.mu.Unlock()
		return awms, weak, nil
	}
	l.mu.Unlock()

	doc, err := l.parse(name)
	if err != nil {
		return nil, false, err
	}

	var awms []*app.AWM
	weakOverall := false
	for i, ad := range doc.AWMs {
		if ad.Value < 0 || ad.Value > 255 {
			return nil, false, fmt.Errorf("recipe %s: awm %q: value %d out of [0,255]", name, ad.Name, ad.Value)
		}
		a := app.NewAWM(app.AWMID(i), ad.Name, ad.Value)

		rejected := false
		weakThis := false
		for _, ud := range ad.Usages {
			amount := res.ConvertValue(ud.Amount, ud.Units)
			leaves := l.accounter.Resolve(ud.Path)
			if len(leaves) == 0 {
				// Path was never registered: drop the usage, mark weak.
				weakThis = true
				continue
			}
			if amount > l.accounter.Total(ud.Path) {
				rejected = true
				break
			}
			a.Usages[ud.Path] = app.TemplateUsage{Path: ud.Path, Amount: amount}
		}
		if rejected {
			continue
		}
		if weakThis {
			a.WeakLoad = true
			weakOverall = true
		}
		awms = append(awms, a)
	}
	if len(awms) == 0 {
		return nil, false, fmt.Errorf("recipe %s: no admissible working modes", name)
	}

	var constraints []app.ConstraintSpec
	for _, cd := range doc.Constraints {
		if cd.Lower != nil {
			constraints = append(constraints, app.ConstraintSpec{Path: cd.Path, Bound: app.LowerBound, Value: *cd.Lower})
		}
		if cd.Upper != nil {
			constraints = append(constraints, app.ConstraintSpec{Path: cd.Path, Bound: app.UpperBound, Value: *cd.Upper})
		}
	}

	l.mu.Lock()
	l.cache[name] = awms
	l.weakCache[name] = weakOverall
	l.constraints[name] = constraints
	l.mu.Unlock()

	return awms, weakOverall, nil
}

// Constraints returns the document-level constraints declared by the named
// recipe, populated as a side effect of a prior (or this) Load call.
func (l *Loader) Constraints(name string) ([]app.ConstraintSpec, error) {
	l.mu.Lock()
	if cs, ok := l.constraints[name]; ok {
		l.mu.Unlock()
		return cs, nil
	}
	l.mu.Unlock()

	if _, _, err := l.Load(name); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.constraints[name], nil
}

func (l *Loader) parse(name string) (*document, error) {
	path := filepath.Join(l.dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", name, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("recipe %s: parsing: %w", name, err)
	}
	return &doc, nil
}
