package normalize

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed entities.yaml
var entitiesYAML []byte

var ErrUnresolved = errors.New("normalize: unresolved entity")

const (
	RoleDebtor   = "debtor"
	RoleCreditor = "creditor"
)

// UnresolvedEntityError reports a name that no lookup table could map.
type UnresolvedEntityError struct {
	Name string
	Role string
}

func (e *UnresolvedEntityError) Error() string {
	return fmt.Sprintf("normalize: unresolved %s %q", e.Role, e.Name)
}

func (e *UnresolvedEntityError) Unwrap() error {
	return ErrUnresolved
}

type CreditorKind string

const (
	KindCountry      CreditorKind = "country"
	KindMultilateral CreditorKind = "multilateral"
	KindPrivate      CreditorKind = "private"
	KindAggregate    CreditorKind = "aggregate"
)

type Country struct {
	ISO3        string   `yaml:"iso3"`
	Name        string   `yaml:"name"`
	Continent   string   `yaml:"continent"`
	IncomeLevel string   `yaml:"income"`
	Aliases     []string `yaml:"aliases"`
}

type Creditor struct {
	Name string
	ISO3 string
	Kind CreditorKind
}

type tables struct {
	Version       string            `yaml:"version"`
	Countries     []Country         `yaml:"countries"`
	Multilaterals map[string]string `yaml:"multilaterals"`
	Private       map[string]string `yaml:"private"`
	Aggregates    []string          `yaml:"aggregates"`
}

type candidate struct {
	key      string
	creditor Creditor
}

// Normalizer maps provider labels to canonical entities. It is read-only
// after construction and safe to share.
type Normalizer struct {
	version      string
	countries    []Country
	byISO        map[string]Country
	byName       map[string]Country
	multilateral map[string]string
	private      map[string]string
	aggregates   map[string]string
	debtorKeys   []candidate
	creditorKeys []candidate
}

// Default loads the embedded lookup tables.
func Default() (*Normalizer, error) {
	return Load(entitiesYAML)
}

func Load(data []byte) (*Normalizer, error) {
	var t tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("normalize: parse tables: %w", err)
	}
	if len(t.Countries) == 0 {
		return nil, errors.New("normalize: tables contain no countries")
	}

	n := &Normalizer{
		version:      t.Version,
		countries:    t.Countries,
		byISO:        make(map[string]Country, len(t.Countries)),
		byName:       make(map[string]Country, len(t.Countries)*2),
		multilateral: make(map[string]string, len(t.Multilaterals)),
		private:      make(map[string]string, len(t.Private)),
		aggregates:   make(map[string]string, len(t.Aggregates)),
	}
	for _, c := range t.Countries {
		iso := strings.ToUpper(strings.TrimSpace(c.ISO3))
		if len(iso) != 3 {
			return nil, fmt.Errorf("normalize: country %q has invalid iso3 %q", c.Name, c.ISO3)
		}
		if _, dup := n.byISO[iso]; dup {
			return nil, fmt.Errorf("normalize: duplicate iso3 %s", iso)
		}
		c.ISO3 = iso
		n.byISO[iso] = c
		cred := Creditor{Name: c.Name, ISO3: iso, Kind: KindCountry}
		for _, label := range append([]string{c.Name}, c.Aliases...) {
			key := Key(label)
			n.byName[key] = c
			n.debtorKeys = append(n.debtorKeys, candidate{key: key, creditor: cred})
			n.creditorKeys = append(n.creditorKeys, candidate{key: key, creditor: cred})
		}
	}
	for raw, canonical := range t.Multilaterals {
		key := Key(raw)
		n.multilateral[key] = canonical
		n.multilateral[Key(canonical)] = canonical
		n.creditorKeys = append(n.creditorKeys, candidate{key: key, creditor: Creditor{Name: canonical, Kind: KindMultilateral}})
	}
	for raw, canonical := range t.Private {
		n.private[Key(raw)] = canonical
		n.private[Key(canonical)] = canonical
		n.creditorKeys = append(n.creditorKeys, candidate{key: Key(raw), creditor: Creditor{Name: canonical, Kind: KindPrivate}})
	}
	for _, label := range t.Aggregates {
		n.aggregates[Key(label)] = label
	}
	// map iteration above is unordered; fuzzy ties must not depend on it
	sort.Slice(n.creditorKeys, func(i, j int) bool { return n.creditorKeys[i].key < n.creditorKeys[j].key })
	return n, nil
}

func (n *Normalizer) Version() string {
	return n.version
}

// Countries returns the country table in resource order.
func (n *Normalizer) Countries() []Country {
	out := make([]Country, len(n.countries))
	copy(out, n.countries)
	return out
}

func (n *Normalizer) Country(iso3 string) (Country, bool) {
	c, ok := n.byISO[strings.ToUpper(strings.TrimSpace(iso3))]
	return c, ok
}

// ResolveDebtor maps a recipient or debtor label (or ISO3 code) to a country.
func (n *Normalizer) ResolveDebtor(name string) (Country, error) {
	cleaned := Clean(name)
	if c, ok := n.byISO[strings.ToUpper(cleaned)]; ok && len(cleaned) == 3 {
		return c, nil
	}
	if c, ok := n.byName[Key(cleaned)]; ok {
		return c, nil
	}
	if match, ok := fuzzy(Key(cleaned), n.debtorKeys); ok {
		return n.byISO[match.ISO3], nil
	}
	return Country{}, &UnresolvedEntityError{Name: name, Role: RoleDebtor}
}

// ISO3 resolves a country label to its code, for joins on tables that only
// carry names.
func (n *Normalizer) ISO3(name string) (string, bool) {
	c, err := n.ResolveDebtor(name)
	if err != nil {
		return "", false
	}
	return c.ISO3, true
}

func (n *Normalizer) IncomeLevel(iso3 string) (string, bool) {
	c, ok := n.Country(iso3)
	if !ok || c.IncomeLevel == "" {
		return "", false
	}
	return c.IncomeLevel, true
}

// ResolveCreditor maps a counterpart or donor label to a creditor entity.
func (n *Normalizer) ResolveCreditor(name string) (Creditor, error) {
	cleaned := Clean(name)
	key := Key(cleaned)
	if c, ok := n.byISO[strings.ToUpper(cleaned)]; ok && len(cleaned) == 3 {
		return Creditor{Name: c.Name, ISO3: c.ISO3, Kind: KindCountry}, nil
	}
	if c, ok := n.byName[key]; ok {
		return Creditor{Name: c.Name, ISO3: c.ISO3, Kind: KindCountry}, nil
	}
	if canonical, ok := n.multilateral[key]; ok {
		return Creditor{Name: canonical, Kind: KindMultilateral}, nil
	}
	if canonical, ok := n.private[key]; ok {
		return Creditor{Name: canonical, Kind: KindPrivate}, nil
	}
	if label, ok := n.aggregates[key]; ok {
		return Creditor{Name: label, Kind: KindAggregate}, nil
	}
	if match, ok := fuzzy(key, n.creditorKeys); ok {
		return match, nil
	}
	return Creditor{}, &UnresolvedEntityError{Name: name, Role: RoleCreditor}
}

// IsAggregate reports whether a label names a total rather than an entity.
func (n *Normalizer) IsAggregate(name string) bool {
	_, ok := n.aggregates[Key(Clean(name))]
	return ok
}

// fuzzy returns the unique closest candidate within a threshold that grows
// with the length of the query. Ties between different entities fail.
func fuzzy(key string, candidates []candidate) (Creditor, bool) {
	size := len([]rune(key))
	if size < 6 {
		return Creditor{}, false
	}
	limit := size / 4
	if limit > 4 {
		limit = 4
	}

	best := -1
	var match Creditor
	ambiguous := false
	for _, c := range candidates {
		d := levenshtein.DistanceForStrings([]rune(key), []rune(c.key), levenshtein.DefaultOptions)
		if d > limit {
			continue
		}
		switch {
		case best == -1 || d < best:
			best, match, ambiguous = d, c.creditor, false
		case d == best && c.creditor != match:
			ambiguous = true
		}
	}
	if best == -1 || ambiguous {
		return Creditor{}, false
	}
	return match, true
}

// Clean removes encoding artefacts and redundant whitespace from a label.
func Clean(s string) string {
	s = strings.NewReplacer("Â\u00a0", "", "Â ", "", "\u00a0", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Key is the comparison form of a label: accents folded, lower case,
// typographic apostrophes unified.
func Key(s string) string {
	folded, _, err := transform.String(foldAccents, Clean(s))
	if err != nil {
		folded = Clean(s)
	}
	folded = strings.NewReplacer("\u2019", "'", "\u2018", "'").Replace(folded)
	return strings.ToLower(folded)
}
