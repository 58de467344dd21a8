package lang

import (
	"fmt"
	"strconv"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
)

// Kind is the discriminant of an ENode variant.
type Kind uint8

const (
	KindVar Kind = iota + 1
	KindLam
	KindApp
	KindLet
	KindNum
	KindSymbol
	KindAdd
)

var kindNames = map[Kind]string{
	KindVar:    "var",
	KindLam:    "lam",
	KindApp:    "app",
	KindLet:    "let",
	KindNum:    "num",
	KindSymbol: "sym",
	KindAdd:    "add",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ENode is a sealed sum type. Only the variants in this file implement it.
//
// Child references are AppliedIDs. Inside a RecExpr or a pattern they are
// placeholders; inside an EGraph they point at live classes.
type ENode interface {
	Kind() Kind
	String() string
	enode() // Sealed - only these types implement it
}

// Var is a reference to the variable denoted by Slot.
type Var struct {
	Slot ir.Slot
}

// Lam binds Binder in Body.
type Lam struct {
	Binder ir.Slot
	Body   ir.AppliedID
}

// App applies Fun to Arg.
type App struct {
	Fun ir.AppliedID
	Arg ir.AppliedID
}

// Let binds Binder to Value in Body. Binder is not bound in Value.
type Let struct {
	Binder ir.Slot
	Value  ir.AppliedID
	Body   ir.AppliedID
}

// Num is an integer literal.
type Num struct {
	Value int64
}

// Symbol is an opaque named constant such as "map" or "transpose".
type Symbol struct {
	Name string
}

// Add is integer addition.
type Add struct {
	Left  ir.AppliedID
	Right ir.AppliedID
}

func (*Var) enode()    {}
func (*Lam) enode()    {}
func (*App) enode()    {}
func (*Let) enode()    {}
func (*Num) enode()    {}
func (*Symbol) enode() {}
func (*Add) enode()    {}

func (*Var) Kind() Kind    { return KindVar }
func (*Lam) Kind() Kind    { return KindLam }
func (*App) Kind() Kind    { return KindApp }
func (*Let) Kind() Kind    { return KindLet }
func (*Num) Kind() Kind    { return KindNum }
func (*Symbol) Kind() Kind { return KindSymbol }
func (*Add) Kind() Kind    { return KindAdd }

func (n *Var) String() string { return fmt.Sprintf("(var %v)", n.Slot) }
func (n *Lam) String() string { return fmt.Sprintf("(lam %v %v)", n.Binder, n.Body) }
func (n *App) String() string { return fmt.Sprintf("(app %v %v)", n.Fun, n.Arg) }
func (n *Let) String() string {
	return fmt.Sprintf("(let %v %v %v)", n.Binder, n.Value, n.Body)
}
func (n *Num) String() string    { return fmt.Sprintf("(num %d)", n.Value) }
func (n *Symbol) String() string { return fmt.Sprintf("(sym %q)", n.Name) }
func (n *Add) String() string    { return fmt.Sprintf("(add %v %v)", n.Left, n.Right) }

// NewVar creates a variable reference.
func NewVar(s ir.Slot) ENode { return &Var{Slot: s} }

// NewLam creates an abstraction.
func NewLam(binder ir.Slot, body ir.AppliedID) ENode { return &Lam{Binder: binder, Body: body} }

// NewApp creates an application.
func NewApp(fun, arg ir.AppliedID) ENode { return &App{Fun: fun, Arg: arg} }

// NewLet creates a let binding.
func NewLet(binder ir.Slot, value, body ir.AppliedID) ENode {
	return &Let{Binder: binder, Value: value, Body: body}
}

// NewNum creates an integer literal.
func NewNum(v int64) ENode { return &Num{Value: v} }

// NewSymbol creates a named constant.
func NewSymbol(name string) ENode { return &Symbol{Name: name} }

// NewAdd creates an addition.
func NewAdd(left, right ir.AppliedID) ENode { return &Add{Left: left, Right: right} }
