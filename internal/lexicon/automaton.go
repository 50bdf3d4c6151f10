package lexicon

// Match is one dictionary hit. Start and End are rune offsets into the
// searched text; End is exclusive.
type Match struct {
	Word  string
	Start int
	End   int
}

type node struct {
	next map[rune]int
	fail int
	// out holds the lengths (in runes) of the words ending at this node,
	// indexed alongside words.
	words []string
	lens  []int
}

// Automaton is an Aho-Corasick multi-pattern matcher over runes.
// It is immutable once built and safe for concurrent use.
type Automaton struct {
	nodes []node
	size  int
}

// NewAutomaton builds a matcher for the given words. Empty words and
// duplicates are ignored.
func NewAutomaton(words []string) *Automaton {
	a := &Automaton{nodes: []node{{next: map[rune]int{}}}}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		a.insert(w)
	}
	a.size = len(seen)
	a.link()
	return a
}

// Len returns the number of distinct words in the automaton.
func (a *Automaton) Len() int {
	return a.size
}

func (a *Automaton) insert(word string) {
	cur := 0
	n := 0
	for _, r := range word {
		nxt, ok := a.nodes[cur].next[r]
		if !ok {
			a.nodes = append(a.nodes, node{next: map[rune]int{}})
			nxt = len(a.nodes) - 1
			a.nodes[cur].next[r] = nxt
		}
		cur = nxt
		n++
	}
	a.nodes[cur].words = append(a.nodes[cur].words, word)
	a.nodes[cur].lens = append(a.nodes[cur].lens, n)
}

// link computes failure links breadth-first and merges output sets.
func (a *Automaton) link() {
	queue := make([]int, 0, len(a.nodes))
	for _, child := range a.nodes[0].next {
		a.nodes[child].fail = 0
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for r, child := range a.nodes[cur].next {
			queue = append(queue, child)
			f := a.nodes[cur].fail
			for {
				if nxt, ok := a.nodes[f].next[r]; ok && nxt != child {
					a.nodes[child].fail = nxt
					break
				}
				if f == 0 {
					a.nodes[child].fail = 0
					break
				}
				f = a.nodes[f].fail
			}
			fn := a.nodes[child].fail
			a.nodes[child].words = append(a.nodes[child].words, a.nodes[fn].words...)
			a.nodes[child].lens = append(a.nodes[child].lens, a.nodes[fn].lens...)
		}
	}
}

// FindAll returns every occurrence of every word in text, overlapping
// matches included, ordered by end position.
func (a *Automaton) FindAll(text []rune) []Match {
	if a == nil || a.size == 0 {
		return nil
	}
	var matches []Match
	cur := 0
	for i, r := range text {
		for {
			if nxt, ok := a.nodes[cur].next[r]; ok {
				cur = nxt
				break
			}
			if cur == 0 {
				break
			}
			cur = a.nodes[cur].fail
		}
		n := &a.nodes[cur]
		for k, w := range n.words {
			matches = append(matches, Match{Word: w, Start: i + 1 - n.lens[k], End: i + 1})
		}
	}
	return matches
}
