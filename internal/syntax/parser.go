package syntax

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
	"github.com/marcusrossel/slotted-egraphs/internal/pattern"
)

// sexp is a parsed s-expression: an atom or a list.
type sexp struct {
	atom string
	list []sexp
	leaf bool
	line int
	col  int
}

func (s sexp) errorf(format string, args ...any) error {
	return &SyntaxError{Line: s.line, Col: s.col, Msg: fmt.Sprintf(format, args...)}
}

func readAll(src string) (sexp, error) {
	toks, err := tokenize(src)
	if err != nil {
		return sexp{}, err
	}
	pos := 0
	var read func() (sexp, error)
	read = func() (sexp, error) {
		tok := toks[pos]
		switch tok.Type {
		case EOF:
			return sexp{}, &SyntaxError{Line: tok.Line, Col: tok.Col, Msg: "unexpected end of input"}
		case RPAREN:
			return sexp{}, &SyntaxError{Line: tok.Line, Col: tok.Col, Msg: "unexpected ')'"}
		case ATOM:
			pos++
			return sexp{atom: tok.Lexeme, leaf: true, line: tok.Line, col: tok.Col}, nil
		}
		pos++
		out := sexp{line: tok.Line, col: tok.Col, list: []sexp{}}
		for toks[pos].Type != RPAREN {
			if toks[pos].Type == EOF {
				return sexp{}, &SyntaxError{Line: tok.Line, Col: tok.Col, Msg: "unclosed '('"}
			}
			child, err := read()
			if err != nil {
				return sexp{}, err
			}
			out.list = append(out.list, child)
		}
		pos++
		return out, nil
	}

	s, err := read()
	if err != nil {
		return sexp{}, err
	}
	if tok := toks[pos]; tok.Type != EOF {
		return sexp{}, &SyntaxError{Line: tok.Line, Col: tok.Col, Msg: fmt.Sprintf("trailing input %q", tok.Lexeme)}
	}
	return s, nil
}

// Parser turns text into terms and patterns.
//
// A Parser keeps one table from slot names to slots across calls, so terms
// parsed by the same Parser agree on what $x means. Slots for new names are
// drawn from the SlotSource given to NewParser; pass the e-graph's source
// so parsed slots never collide with slots the graph invents.
type Parser struct {
	src   *ir.SlotSource
	slots map[string]ir.Slot
	names map[ir.Slot]string
}

// NewParser creates a parser drawing slots from src.
func NewParser(src *ir.SlotSource) *Parser {
	return &Parser{
		src:   src,
		slots: make(map[string]ir.Slot),
		names: make(map[ir.Slot]string),
	}
}

// Slot returns the slot for name (with or without the leading '$'),
// allocating one on first use.
func (p *Parser) Slot(name string) ir.Slot {
	name = norm.NFC.String(name)
	if !strings.HasPrefix(name, "$") {
		name = "$" + name
	}
	if s, ok := p.slots[name]; ok {
		return s
	}
	s := p.src.Fresh()
	p.slots[name] = s
	p.names[s] = name
	return s
}

// Name returns the source name of s, or its number if the parser never
// saw it.
func (p *Parser) Name(s ir.Slot) string {
	if n, ok := p.names[s]; ok {
		return n
	}
	return s.String()
}

// Names returns a copy of the slot-to-name table.
func (p *Parser) Names() map[ir.Slot]string {
	out := make(map[ir.Slot]string, len(p.names))
	for s, n := range p.names {
		out[s] = n
	}
	return out
}

// ParseExpr parses a term. Pattern variables and subst are rejected.
func (p *Parser) ParseExpr(src string) (lang.RecExpr, error) {
	s, err := readAll(src)
	if err != nil {
		return lang.RecExpr{}, err
	}
	pt, err := p.convert(s, false)
	if err != nil {
		return lang.RecExpr{}, err
	}
	return pattern.ToExpr(pt), nil
}

// ParsePattern parses a pattern.
func (p *Parser) ParsePattern(src string) (pattern.Pattern, error) {
	s, err := readAll(src)
	if err != nil {
		return nil, err
	}
	return p.convert(s, true)
}

// MustParseExpr is ParseExpr for inputs known to be valid.
func (p *Parser) MustParseExpr(src string) lang.RecExpr {
	e, err := p.ParseExpr(src)
	if err != nil {
		panic(err)
	}
	return e
}

// MustParsePattern is ParsePattern for inputs known to be valid.
func (p *Parser) MustParsePattern(src string) pattern.Pattern {
	pt, err := p.ParsePattern(src)
	if err != nil {
		panic(err)
	}
	return pt
}

func (p *Parser) slotAtom(s sexp) (ir.Slot, error) {
	if !s.leaf || len(s.atom) < 2 || s.atom[0] != '$' {
		return 0, s.errorf("expected a slot like $x")
	}
	return p.Slot(s.atom), nil
}

var arity = map[string]int{
	"lam":   2,
	"app":   2,
	"let":   3,
	"add":   2,
	"var":   1,
	"subst": 3,
}

func (p *Parser) convert(s sexp, patterns bool) (pattern.Pattern, error) {
	if s.leaf {
		return p.atom(s, patterns)
	}
	if len(s.list) == 0 {
		return nil, s.errorf("empty list")
	}

	head := s.list[0]
	args := s.list[1:]
	n, keyword := arity[head.atom]
	if !head.leaf || !keyword {
		return p.application(s, patterns)
	}
	if len(args) != n {
		return nil, s.errorf("%s takes %d arguments, got %d", head.atom, n, len(args))
	}

	sub := func(i int) (pattern.Pattern, error) { return p.convert(args[i], patterns) }
	switch head.atom {
	case "var":
		slot, err := p.slotAtom(args[0])
		if err != nil {
			return nil, err
		}
		return pattern.NewNode(lang.NewVar(slot)), nil

	case "lam":
		slot, err := p.slotAtom(args[0])
		if err != nil {
			return nil, err
		}
		body, err := sub(1)
		if err != nil {
			return nil, err
		}
		return pattern.NewNode(lang.NewLam(slot, ir.AppliedID{}), body), nil

	case "let":
		slot, err := p.slotAtom(args[0])
		if err != nil {
			return nil, err
		}
		value, err := sub(1)
		if err != nil {
			return nil, err
		}
		body, err := sub(2)
		if err != nil {
			return nil, err
		}
		return pattern.NewNode(lang.NewLet(slot, ir.AppliedID{}, ir.AppliedID{}), value, body), nil

	case "app", "add":
		l, err := sub(0)
		if err != nil {
			return nil, err
		}
		r, err := sub(1)
		if err != nil {
			return nil, err
		}
		if head.atom == "app" {
			return pattern.NewNode(lang.NewApp(ir.AppliedID{}, ir.AppliedID{}), l, r), nil
		}
		return pattern.NewNode(lang.NewAdd(ir.AppliedID{}, ir.AppliedID{}), l, r), nil

	default: // subst
		if !patterns {
			return nil, s.errorf("subst is only allowed in patterns")
		}
		body, err := sub(0)
		if err != nil {
			return nil, err
		}
		target, err := sub(1)
		if err != nil {
			return nil, err
		}
		t, err := sub(2)
		if err != nil {
			return nil, err
		}
		return pattern.NewSubst(body, target, t), nil
	}
}

// application parses (f a b ...) as nested binary applications.
func (p *Parser) application(s sexp, patterns bool) (pattern.Pattern, error) {
	if len(s.list) < 2 {
		return nil, s.errorf("application needs a function and at least one argument")
	}
	out, err := p.convert(s.list[0], patterns)
	if err != nil {
		return nil, err
	}
	for _, a := range s.list[1:] {
		arg, err := p.convert(a, patterns)
		if err != nil {
			return nil, err
		}
		out = pattern.NewNode(lang.NewApp(ir.AppliedID{}, ir.AppliedID{}), out, arg)
	}
	return out, nil
}

func (p *Parser) atom(s sexp, patterns bool) (pattern.Pattern, error) {
	switch a := s.atom; {
	case a[0] == '$':
		slot, err := p.slotAtom(s)
		if err != nil {
			return nil, err
		}
		return pattern.NewNode(lang.NewVar(slot)), nil

	case a[0] == '?':
		if !patterns {
			return nil, s.errorf("pattern variable %s is only allowed in patterns", a)
		}
		if len(a) < 2 {
			return nil, s.errorf("pattern variable needs a name")
		}
		return pattern.PVar(a), nil

	default:
		if v, err := strconv.ParseInt(a, 10, 64); err == nil {
			return pattern.NewNode(lang.NewNum(v)), nil
		}
		if _, keyword := arity[a]; keyword {
			return nil, s.errorf("%s must be applied", a)
		}
		return pattern.NewNode(lang.NewSymbol(a)), nil
	}
}
