// Package lexicon implements the lexical stage of moderation: emoji removal,
// case folding and whole-word profanity counting against two dictionaries.
package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

// MaxSecondaryHits is the most secondary-dictionary hits a text may carry and
// still pass, provided the primary dictionary has none.
const MaxSecondaryHits = 6

// ErrEmptyDictionary is returned when a dictionary file yields no words.
var ErrEmptyDictionary = errors.New("lexicon: dictionary is empty")

// Decision is the outcome of the lexical stage.
type Decision int

const (
	// Clean means no dictionary word was found.
	Clean Decision = iota
	// Tolerated means a few secondary-dictionary words and no primary ones.
	Tolerated
	// Rejected means too many hits or any primary-dictionary hit.
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Clean:
		return "clean"
	case Tolerated:
		return "tolerated"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Analysis is the result of Filter.Analyze.
type Analysis struct {
	// Clean is the input with pictographs removed, original casing kept.
	Clean         string
	PrimaryHits   map[string]int
	SecondaryHits map[string]int
	Total         int
	Decision      Decision
}

// Passed reports whether the text may proceed to semantic classification.
func (a Analysis) Passed() bool {
	return a.Decision != Rejected
}

// Reason summarises the hit counts for logs and rejection records.
func (a Analysis) Reason() string {
	return fmt.Sprintf("%d dictionary hits (primary %d, secondary %d)",
		a.Total, sum(a.PrimaryHits), sum(a.SecondaryHits))
}

// dictionaries is swapped atomically on reload.
type dictionaries struct {
	primary   *Automaton
	secondary *Automaton
}

// Filter counts dictionary words in text. It is safe for concurrent use and
// its dictionaries can be replaced while in use.
type Filter struct {
	dicts atomic.Pointer[dictionaries]
}

// NewFilter builds a filter from word lists. Words are case folded.
func NewFilter(primary, secondary []string) *Filter {
	f := &Filter{}
	f.set(primary, secondary)
	return f
}

// NewFilterFromFiles loads both dictionaries from disk.
func NewFilterFromFiles(primaryPath, secondaryPath string) (*Filter, error) {
	primary, secondary, err := loadPair(primaryPath, secondaryPath)
	if err != nil {
		return nil, err
	}
	return NewFilter(primary, secondary), nil
}

// Reload replaces both dictionaries from disk. On error the current
// dictionaries stay in effect.
func (f *Filter) Reload(primaryPath, secondaryPath string) error {
	primary, secondary, err := loadPair(primaryPath, secondaryPath)
	if err != nil {
		return err
	}
	f.set(primary, secondary)
	return nil
}

// Sizes returns the number of words in each dictionary.
func (f *Filter) Sizes() (primary, secondary int) {
	d := f.dicts.Load()
	return d.primary.Len(), d.secondary.Len()
}

func (f *Filter) set(primary, secondary []string) {
	f.dicts.Store(&dictionaries{
		primary:   NewAutomaton(foldAll(primary)),
		secondary: NewAutomaton(foldAll(secondary)),
	})
}

// Analyze strips pictographs, counts whole-word hits per dictionary and
// applies the acceptance rule.
func (f *Filter) Analyze(text string) Analysis {
	clean := StripPictographs(text)
	folded := []rune(fold(clean))
	d := f.dicts.Load()

	a := Analysis{
		Clean:         clean,
		PrimaryHits:   count(d.primary, folded),
		SecondaryHits: count(d.secondary, folded),
	}
	primaryTotal := sum(a.PrimaryHits)
	a.Total = primaryTotal + sum(a.SecondaryHits)

	switch {
	case a.Total == 0:
		a.Decision = Clean
	case a.Total <= MaxSecondaryHits && primaryTotal == 0:
		a.Decision = Tolerated
	default:
		a.Decision = Rejected
	}
	return a
}

func count(a *Automaton, text []rune) map[string]int {
	counts := make(map[string]int)
	for _, m := range a.FindAll(text) {
		if wholeWord(text, m.Start, m.End) {
			counts[m.Word]++
		}
	}
	return counts
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(fold(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func loadPair(primaryPath, secondaryPath string) ([]string, []string, error) {
	primary, err := LoadDictionary(primaryPath)
	if err != nil {
		return nil, nil, err
	}
	secondary, err := LoadDictionary(secondaryPath)
	if err != nil {
		return nil, nil, err
	}
	return primary, secondary, nil
}

// LoadDictionary reads one word per line. Blank lines are skipped.
func LoadDictionary(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if w := strings.TrimSpace(sc.Text()); w != "" {
			words = append(words, w)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDictionary, path)
	}
	return words, nil
}
