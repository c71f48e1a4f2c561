package dice

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads expr into unrolled terms. Whitespace is ignored and the
// notation is case-insensitive.
func Parse(expr string) ([]Term, error) {
	src := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, expr)
	if src == "" {
		return nil, invalid(expr, "empty expression")
	}

	p := &parser{src: src}
	var terms []Term
	for p.pos < len(p.src) {
		negative := false
		switch p.peek() {
		case '+':
			p.pos++
		case '-':
			negative = true
			p.pos++
		default:
			if len(terms) > 0 {
				return nil, invalid(expr, fmt.Sprintf("expected + or - at %d", p.pos))
			}
		}

		t, err := p.term()
		if err != nil {
			return nil, invalid(expr, err.Error())
		}
		t.Negative = negative
		terms = append(terms, t)
		if len(terms) > MaxTerms {
			return nil, invalid(expr, fmt.Sprintf("more than %d terms", MaxTerms))
		}
	}
	return terms, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// number reads digits; ok is false when there are none.
func (p *parser) number() (int, bool, error) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, false, nil
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, false, fmt.Errorf("number %q out of range", p.src[start:p.pos])
	}
	return n, true, nil
}

func (p *parser) term() (Term, error) {
	count, hasCount, err := p.number()
	if err != nil {
		return Term{}, err
	}

	if p.peek() != 'd' {
		if !hasCount {
			return Term{}, fmt.Errorf("expected a number or dice at %d", p.pos)
		}
		return Term{Constant: count}, nil
	}
	p.pos++

	if !hasCount {
		count = 1
	}
	sides, ok, err := p.number()
	if err != nil {
		return Term{}, err
	}
	if !ok {
		return Term{}, fmt.Errorf("expected die size at %d", p.pos)
	}

	t := Term{Count: count, Sides: sides}
	if strings.HasPrefix(p.src[p.pos:], "kh") || strings.HasPrefix(p.src[p.pos:], "kl") {
		t.KeepHighest = p.src[p.pos+1] == 'h'
		p.pos += 2
		keep, ok, err := p.number()
		if err != nil {
			return Term{}, err
		}
		if !ok {
			return Term{}, fmt.Errorf("expected keep count at %d", p.pos)
		}
		if keep < 1 || keep > count {
			return Term{}, fmt.Errorf("cannot keep %d of %d dice", keep, count)
		}
		t.Keep = keep
	}

	switch {
	case count < 1 || count > MaxDice:
		return Term{}, fmt.Errorf("dice count must be between 1 and %d", MaxDice)
	case sides < 1 || sides > MaxSides:
		return Term{}, fmt.Errorf("die size must be between 1 and %d", MaxSides)
	}
	return t, nil
}

func invalid(expr, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidExpression, expr, reason)
}
