// Package dice evaluates tabletop roll expressions such as "1d20+5",
// "4d6kh3" or "2d20kl1 - 1".
package dice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	MaxDice  = 100
	MaxSides = 1000
	MaxTerms = 20
)

// ErrInvalidExpression is wrapped by every parse failure.
var ErrInvalidExpression = errors.New("invalid roll expression")

// Term is one signed piece of an expression: a constant or a group of dice.
type Term struct {
	Negative bool
	Constant int

	Count int
	Sides int
	// Keep > 0 keeps only that many of the highest (or lowest) dice.
	Keep        int
	KeepHighest bool

	Rolls []int
	Kept  []bool
}

// IsDice reports whether the term rolls dice.
func (t *Term) IsDice() bool {
	return t.Sides > 0
}

// Value is the term's unsigned contribution.
func (t *Term) Value() int {
	if !t.IsDice() {
		return t.Constant
	}
	sum := 0
	for i, r := range t.Rolls {
		if t.Kept[i] {
			sum += r
		}
	}
	return sum
}

func (t *Term) notation() string {
	if !t.IsDice() {
		return strconv.Itoa(t.Constant)
	}
	s := fmt.Sprintf("%dd%d", t.Count, t.Sides)
	if t.Keep > 0 {
		if t.KeepHighest {
			s += fmt.Sprintf("kh%d", t.Keep)
		} else {
			s += fmt.Sprintf("kl%d", t.Keep)
		}
	}
	return s
}

func (t *Term) String() string {
	if !t.IsDice() {
		return t.notation()
	}
	shown := make([]string, len(t.Rolls))
	for i, r := range t.Rolls {
		if t.Kept[i] {
			shown[i] = strconv.Itoa(r)
		} else {
			shown[i] = "~~" + strconv.Itoa(r) + "~~"
		}
	}
	return fmt.Sprintf("%s (%s)", t.notation(), strings.Join(shown, ", "))
}

// Result is an evaluated expression.
type Result struct {
	Terms []Term
	Total int
}

// String renders the result the way it is shown in chat, e.g.
// "1d20 (12) + 5 = `17`".
func (r *Result) String() string {
	var b strings.Builder
	for i := range r.Terms {
		t := &r.Terms[i]
		switch {
		case i == 0 && t.Negative:
			b.WriteString("-")
		case i > 0 && t.Negative:
			b.WriteString(" - ")
		case i > 0:
			b.WriteString(" + ")
		}
		b.WriteString(t.String())
	}
	fmt.Fprintf(&b, " = `%d`", r.Total)
	return b.String()
}

// Roller rolls dice from a random source.
type Roller struct {
	mu   sync.Mutex
	intn func(n int) int
}

// NewRoller returns a Roller with a deterministic source, for replays and
// tests.
func NewRoller(seed1, seed2 uint64) *Roller {
	rng := rand.New(rand.NewPCG(seed1, seed2))
	return &Roller{intn: rng.IntN}
}

var defaultRoller = &Roller{intn: rand.IntN}

// Roll evaluates expr with the package's shared random source.
func Roll(expr string) (*Result, error) {
	return defaultRoller.Roll(expr)
}

// Roll parses and evaluates expr.
func (r *Roller) Roll(expr string) (*Result, error) {
	terms, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res := &Result{Terms: terms}
	for i := range res.Terms {
		t := &res.Terms[i]
		if t.IsDice() {
			t.Rolls = make([]int, t.Count)
			for j := range t.Rolls {
				t.Rolls[j] = r.intn(t.Sides) + 1
			}
			t.Kept = keep(t.Rolls, t.Keep, t.KeepHighest)
		}
		if t.Negative {
			res.Total -= t.Value()
		} else {
			res.Total += t.Value()
		}
	}
	return res, nil
}

// keep marks which rolls count. Ties keep the earlier die.
func keep(rolls []int, n int, highest bool) []bool {
	kept := make([]bool, len(rolls))
	if n <= 0 || n >= len(rolls) {
		for i := range kept {
			kept[i] = true
		}
		return kept
	}

	idx := make([]int, len(rolls))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if highest {
			return rolls[idx[a]] > rolls[idx[b]]
		}
		return rolls[idx[a]] < rolls[idx[b]]
	})
	for _, i := range idx[:n] {
		kept[i] = true
	}
	return kept
}
