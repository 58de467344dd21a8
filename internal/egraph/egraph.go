package egraph

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

// member is one node of a class, stored by shape.
//
// bij maps the public slots of shape to slots of the owning class. Images
// outside the class's exposed slots are redundant: the node mentions them
// but the class does not depend on them.
type member struct {
	shape lang.ENode
	bij   ir.SlotMap
}

// node instantiates the member in the owning class's slot names.
func (m member) node() lang.ENode {
	return lang.ApplySlotMapPartial(m.shape, m.bij)
}

// usage records that the member with shape key key of class owner has a
// child reference to the class holding the usage.
type usage struct {
	owner ir.ID
	key   string
}

// EClass is an equivalence class of nodes.
type EClass struct {
	nodes  map[string]member
	slots  *set.Set[ir.Slot]
	usages *set.Set[usage]
}

func newEClass(slots *set.Set[ir.Slot]) *EClass {
	return &EClass{
		nodes:  make(map[string]member),
		slots:  slots.Copy(),
		usages: set.New[usage](0),
	}
}

// Member is a read-only view of one node of a class.
type Member struct {
	// Shape is the canonical node.
	Shape lang.ENode
	// Bij maps the public slots of Shape to slots of the class.
	Bij ir.SlotMap
}

// Node returns the member in the class's slot names.
func (m Member) Node() lang.ENode {
	return lang.ApplySlotMapPartial(m.Shape, m.Bij)
}

// Stats counts what the union engine did over the lifetime of an EGraph.
type Stats struct {
	ClassesAllocated   int
	Unions             int
	SelfUnionsRejected int
}

// EGraph is a slotted e-graph.
//
// Thread-safety: none. See the package documentation.
//
// INVARIANTS (whenever no Union is in flight):
//   - every shape key is owned by at most one live class
//   - the exposed slots of a class are a subset of every member's slots
//   - every union-find entry points one hop to a live class
//   - every child reference maps exactly the exposed slots of its class
type EGraph struct {
	classes   map[ir.ID]*EClass
	hashcons  map[string]ir.ID
	unionfind map[ir.ID]ir.AppliedID
	nextID    ir.ID

	src     *ir.SlotSource
	pending *unionQueue
	logger  *slog.Logger
	stats   Stats
}

// Option configures an EGraph.
type Option func(*EGraph)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *EGraph) {
		g.logger = l
	}
}

// WithSlotSource makes the EGraph draw fresh slots from src. Terms built
// with the same source can never collide with slots the graph invents.
func WithSlotSource(src *ir.SlotSource) Option {
	return func(g *EGraph) {
		g.src = src
	}
}

// New creates an empty EGraph.
func New(opts ...Option) *EGraph {
	g := &EGraph{
		classes:   make(map[ir.ID]*EClass),
		hashcons:  make(map[string]ir.ID),
		unionfind: make(map[ir.ID]ir.AppliedID),
		src:       ir.NewSlotSource(),
		pending:   newUnionQueue(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SlotSource returns the source the graph allocates fresh slots from.
func (g *EGraph) SlotSource() *ir.SlotSource {
	return g.src
}

// Stats returns the engine counters.
func (g *EGraph) Stats() Stats {
	return g.stats
}

// allocClass creates an empty class exposing slots.
func (g *EGraph) allocClass(slots *set.Set[ir.Slot]) ir.ID {
	id := g.nextID
	g.nextID++
	g.classes[id] = newEClass(slots)
	g.unionfind[id] = ir.NewAppliedID(id, ir.Identity(slots))
	g.stats.ClassesAllocated++
	return id
}

// rawAdd inserts a member into class id without any normalization.
func (g *EGraph) rawAdd(id ir.ID, shape lang.ENode, bij ir.SlotMap) {
	key := shape.String()
	c := g.classes[id]
	c.nodes[key] = member{shape: shape, bij: bij}
	g.hashcons[key] = id
	for _, child := range lang.IDs(shape) {
		if cc, ok := g.classes[child]; ok {
			cc.usages.Insert(usage{owner: id, key: key})
		}
	}
}

// rawRemove deletes the member with the given shape key from class id and
// returns it. The hash-cons entry is only dropped if it still points at id.
func (g *EGraph) rawRemove(id ir.ID, key string) (member, bool) {
	c, ok := g.classes[id]
	if !ok {
		return member{}, false
	}
	m, ok := c.nodes[key]
	if !ok {
		return member{}, false
	}
	delete(c.nodes, key)
	if g.hashcons[key] == id {
		delete(g.hashcons, key)
	}
	for _, child := range lang.IDs(m.shape) {
		if cc, ok := g.classes[child]; ok {
			cc.usages.Remove(usage{owner: id, key: key})
		}
	}
	return m, true
}

// Normalize resolves a through the union-find to its live class.
func (g *EGraph) Normalize(a ir.AppliedID) ir.AppliedID {
	u, ok := g.unionfind[a.ID]
	if !ok {
		panic(fmt.Sprintf("egraph: unknown class %v", a.ID))
	}
	return ir.NewAppliedID(u.ID, u.M.ComposePartial(a.M))
}

// NormalizeNode resolves every child reference of n through the union-find.
func (g *EGraph) NormalizeNode(n lang.ENode) lang.ENode {
	return lang.MapAppliedIDs(n, g.Normalize)
}

// Find returns the live class that id has been merged into.
func (g *EGraph) Find(id ir.ID) ir.ID {
	u, ok := g.unionfind[id]
	if !ok {
		panic(fmt.Sprintf("egraph: unknown class %v", id))
	}
	return u.ID
}

// Lookup returns the occurrence of the class containing n, if any. It never
// mutates the graph.
func (g *EGraph) Lookup(n lang.ENode) (ir.AppliedID, bool) {
	n = g.NormalizeNode(n)
	sh := lang.ShapeOf(n)
	id, ok := g.hashcons[sh.Key()]
	if !ok {
		return ir.AppliedID{}, false
	}
	c := g.classes[id]
	m := c.nodes[sh.Key()]

	// m.bij: shape -> class, sh.Bij: shape -> n.
	out := m.bij.Inverse().ComposePartial(sh.Bij).RestrictTo(c.slots)
	return ir.NewAppliedID(id, out), true
}

// Add inserts n and returns the occurrence of its class. If a node with the
// same shape exists, its class is returned; otherwise a new class is created
// whose exposed slots are fresh.
func (g *EGraph) Add(n lang.ENode) ir.AppliedID {
	n = g.NormalizeNode(n)
	if a, ok := g.Lookup(n); ok {
		return a
	}

	sh := lang.ShapeOf(n)
	// cbij: shape -> fresh class slots.
	cbij := ir.BijectionFromFreshTo(sh.Bij.KeySet(), g.src).Inverse()
	id := g.allocClass(cbij.ValueSet())
	g.rawAdd(id, sh.Node, cbij)

	g.logger.Debug("class created", "class", id, "node", sh.Key())
	return ir.NewAppliedID(id, cbij.Inverse().ComposePartial(sh.Bij))
}

// AddExpr inserts every node of e bottom-up and returns the occurrence of
// the root.
func (g *EGraph) AddExpr(e lang.RecExpr) ir.AppliedID {
	ids := make([]ir.AppliedID, len(e.Children))
	for i, c := range e.Children {
		ids[i] = g.AddExpr(c)
	}
	return g.Add(lang.WithAppliedIDs(e.Node, ids))
}

// LookupExpr returns the occurrence of e's root class if every node of e is
// already present.
func (g *EGraph) LookupExpr(e lang.RecExpr) (ir.AppliedID, bool) {
	ids := make([]ir.AppliedID, len(e.Children))
	for i, c := range e.Children {
		a, ok := g.LookupExpr(c)
		if !ok {
			return ir.AppliedID{}, false
		}
		ids[i] = a
	}
	return g.Lookup(lang.WithAppliedIDs(e.Node, ids))
}

// Equivalent reports whether a and b denote the same term: same class and,
// after normalization, the same renaming.
func (g *EGraph) Equivalent(a, b ir.AppliedID) bool {
	return g.Normalize(a).Equal(g.Normalize(b))
}

// Classes returns the ids of the live classes in ascending order.
func (g *EGraph) Classes() []ir.ID {
	out := make([]ir.ID, 0, len(g.classes))
	for id := range g.classes {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// NumClasses returns the number of live classes.
func (g *EGraph) NumClasses() int {
	return len(g.classes)
}

// NumNodes returns the number of members across all live classes.
func (g *EGraph) NumNodes() int {
	n := 0
	for _, c := range g.classes {
		n += len(c.nodes)
	}
	return n
}

// Slots returns the exposed slots of the live class id.
func (g *EGraph) Slots(id ir.ID) *set.Set[ir.Slot] {
	return g.class(id).slots.Copy()
}

// Identity returns the occurrence of class id under its own slot names.
func (g *EGraph) Identity(id ir.ID) ir.AppliedID {
	return ir.NewAppliedID(id, ir.Identity(g.class(id).slots))
}

// Members returns the members of the live class id ordered by shape key.
func (g *EGraph) Members(id ir.ID) []Member {
	c := g.class(id)
	out := make([]Member, 0, len(c.nodes))
	for _, key := range sortedKeys(c.nodes) {
		m := c.nodes[key]
		out = append(out, Member{Shape: m.shape, Bij: m.bij.Clone()})
	}
	return out
}

// Nodes returns the members of the live class id in the class's slot names.
func (g *EGraph) Nodes(id ir.ID) []lang.ENode {
	ms := g.Members(id)
	out := make([]lang.ENode, len(ms))
	for i, m := range ms {
		out[i] = m.Node()
	}
	return out
}

func (g *EGraph) class(id ir.ID) *EClass {
	c, ok := g.classes[id]
	if !ok {
		panic(fmt.Sprintf("egraph: %v is not a live class", id))
	}
	return c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedUsages(s *set.Set[usage]) []usage {
	out := s.Slice()
	slices.SortFunc(out, func(a, b usage) int {
		if a.owner != b.owner {
			return int(a.owner) - int(b.owner)
		}
		switch {
		case a.key < b.key:
			return -1
		case a.key > b.key:
			return 1
		}
		return 0
	})
	return out
}
