package syntax

import (
	"fmt"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
	"github.com/marcusrossel/slotted-egraphs/internal/pattern"
)

// Print renders e, naming slots through names. Slots missing from names
// print as their number.
func Print(e lang.RecExpr, names map[ir.Slot]string) string {
	return e.Format(namer(names))
}

// PrintPattern renders p, naming slots through names.
func PrintPattern(p pattern.Pattern, names map[ir.Slot]string) string {
	return pattern.Format(p, namer(names))
}

func namer(names map[ir.Slot]string) func(ir.Slot) string {
	return func(s ir.Slot) string {
		if n, ok := names[s]; ok {
			return n
		}
		return s.String()
	}
}

// Print renders e with the parser's slot names.
func (p *Parser) Print(e lang.RecExpr) string {
	return e.Format(p.Name)
}

// PrintPattern renders pt with the parser's slot names.
func (p *Parser) PrintPattern(pt pattern.Pattern) string {
	return pattern.Format(pt, p.Name)
}

// PrintTerm renders e with the parser's slot names. Slots the parser never
// named, such as binders made fresh by extraction, are named $_1, $_2, ...
// in order of first occurrence, so the output parses back to an
// alpha-equivalent term.
func (p *Parser) PrintTerm(e lang.RecExpr) string {
	names := p.Names()
	next := 1
	var visit func(lang.RecExpr)
	visit = func(e lang.RecExpr) {
		for _, s := range lang.OwnSlotOccurrences(e.Node) {
			if _, ok := names[s]; !ok {
				names[s] = fmt.Sprintf("$_%d", next)
				next++
			}
		}
		for _, c := range e.Children {
			visit(c)
		}
	}
	visit(e)
	return Print(e, names)
}
