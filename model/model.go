package model

import (
	"sort"

	"github.com/pkg/errors"
)

type nodeKind int

const (
	variableNode nodeKind = iota
	distributionNode
	functionNode
)

type phase int

const (
	phaseNew phase = iota
	phaseConstructing
	phaseReady
)

// entry is one slot in the node arena
type entry struct {
	kind nodeKind
	v    *Variable
	d    *DistributionNode
	f    *FunctionNode
}

func (e entry) node() Node {
	switch e.kind {
	case variableNode:
		return e.v
	case distributionNode:
		return e.d
	}
	return e.f
}

// Edge is a directed dependency From -> To (To depends on From)
type Edge struct {
	From string
	To   string
}

// Model owns the full dependency graph for one chain. Nodes live in an
// arena addressed by NodeID; edges are adjacency lists keyed by NodeID.
// Nodes and edges may only be created between BeginConstruction and
// EndConstruction. After that the only topology change allowed is
// replacing an edge (UpdateEdge), and values change only inside a
// Transaction.
type Model struct {
	Name string

	nodes      []entry
	byName     map[string]NodeID
	deps       [][]NodeID // deps[n]: nodes n depends on
	dependents [][]NodeID // dependents[n]: nodes that depend on n
	variables  []*Variable

	order      []NodeID // topological order
	rank       []int    // rank[n] is n's position in order
	orderStale bool

	phase     phase
	restoring bool
	tx        *Transaction

	logPrior      float64
	logLikelihood float64
}

// New creates an empty model
func New(name string) *Model {
	return &Model{
		Name:   name,
		byName: make(map[string]NodeID),
	}
}

// BeginConstruction opens the model for adding nodes and edges. It may be
// called exactly once.
func (m *Model) BeginConstruction() error {
	if m.phase != phaseNew {
		return modelErrorf("BeginConstruction", "model %s is already under or past construction", m.Name)
	}
	m.phase = phaseConstructing
	return nil
}

// EndConstruction freezes the topology and performs exactly one full update
// of every node in topological order, establishing the cached densities and
// the logPrior/logLikelihood totals. Calling it a second time is an error.
// Invalid distribution parameters or an initial state with a non-finite
// density are construction errors.
func (m *Model) EndConstruction() error {
	if m.phase != phaseConstructing {
		return modelErrorf("EndConstruction", "model %s is not under construction", m.Name)
	}
	if err := m.computeOrder(); err != nil {
		return err
	}
	if err := m.fullUpdate(); err != nil {
		return errors.Wrapf(err, "Initial update of model %s failed", m.Name)
	}
	m.phase = phaseReady
	return nil
}

// Ready is true once construction has ended
func (m *Model) Ready() bool { return m.phase == phaseReady }

func (m *Model) checkConstructing(op string) error {
	if m.phase != phaseConstructing {
		return modelErrorf(op, "topology of model %s is frozen (not under construction)", m.Name)
	}
	return nil
}

func (m *Model) addEntry(op string, name string, e entry) (NodeID, error) {
	if err := m.checkConstructing(op); err != nil {
		return -1, err
	}
	if name == "" {
		return -1, modelErrorf(op, "node name must not be empty")
	}
	if _, dup := m.byName[name]; dup {
		return -1, modelErrorf(op, "duplicate node name %s", name)
	}

	id := NodeID(len(m.nodes))
	m.nodes = append(m.nodes, e)
	m.deps = append(m.deps, nil)
	m.dependents = append(m.dependents, nil)
	m.byName[name] = id
	m.orderStale = true
	return id, nil
}

// AddVariable adds a variable with an initial value
func (m *Model) AddVariable(name string, val Value, observed bool) (*Variable, error) {
	v := &Variable{name: name, model: m, observed: observed, value: val.Clone()}
	id, err := m.addEntry("AddVariable", name, entry{kind: variableNode, v: v})
	if err != nil {
		return nil, err
	}
	v.id = id
	m.variables = append(m.variables, v)
	return v, nil
}

// AddDistribution adds a distribution node that reads the given inputs
func (m *Model) AddDistribution(name string, d Distribution, inputs ...Node) (*DistributionNode, error) {
	if d == nil {
		return nil, modelErrorf("AddDistribution", "nil distribution for %s", name)
	}
	dn := &DistributionNode{Distribution: d, name: name}
	id, err := m.addEntry("AddDistribution", name, entry{kind: distributionNode, d: dn})
	if err != nil {
		return nil, err
	}
	dn.id = id
	for _, in := range inputs {
		if err := m.AddEdge(in, dn); err != nil {
			return nil, err
		}
	}
	return dn, nil
}

// AddFunction adds a deterministic node that reads the given inputs
func (m *Model) AddFunction(name string, f Function, inputs ...Node) (*FunctionNode, error) {
	if f == nil {
		return nil, modelErrorf("AddFunction", "nil function for %s", name)
	}
	fn := &FunctionNode{Function: f, name: name}
	id, err := m.addEntry("AddFunction", name, entry{kind: functionNode, f: fn})
	if err != nil {
		return nil, err
	}
	fn.id = id
	for _, in := range inputs {
		if err := m.AddEdge(in, fn); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

// SetDistribution attaches d as the law of v (edge d -> v)
func (m *Model) SetDistribution(v *Variable, d *DistributionNode) error {
	if err := m.checkConstructing("SetDistribution"); err != nil {
		return err
	}
	if v.dist != nil {
		return modelErrorf("SetDistribution", "variable %s already has distribution %s", v.name, v.dist.name)
	}
	return m.AddEdge(d, v)
}

func (m *Model) owns(n Node) bool {
	if n == nil {
		return false
	}
	id := n.ID()
	if id < 0 || int(id) >= len(m.nodes) {
		return false
	}
	return m.nodes[id].node() == n
}

// AddEdge adds dependency from -> to. A Variable may depend only on a single
// Distribution; distributions and functions may depend on any node.
func (m *Model) AddEdge(from, to Node) error {
	if err := m.checkConstructing("AddEdge"); err != nil {
		return err
	}
	if !m.owns(from) || !m.owns(to) {
		return modelErrorf("AddEdge", "both nodes must belong to model %s", m.Name)
	}
	if from.ID() == to.ID() {
		return modelErrorf("AddEdge", "self edge on %s", from.Name())
	}
	if err := m.checkArity(from, to, nil); err != nil {
		return err
	}
	for _, d := range m.deps[to.ID()] {
		if d == from.ID() {
			return modelErrorf("AddEdge", "duplicate edge %s -> %s", from.Name(), to.Name())
		}
	}

	m.link(from.ID(), to.ID())
	m.orderStale = true
	return nil
}

// checkArity enforces that a variable's only dependency is one distribution
func (m *Model) checkArity(from, to Node, replacing Node) error {
	e := m.nodes[to.ID()]
	if e.kind != variableNode {
		return nil
	}
	if m.nodes[from.ID()].kind != distributionNode {
		return modelErrorf("AddEdge", "variable %s may only depend on a distribution, not %s", to.Name(), from.Name())
	}
	if e.v.dist != nil && (replacing == nil || e.v.dist.ID() != replacing.ID()) {
		return modelErrorf("AddEdge", "variable %s already has distribution %s", to.Name(), e.v.dist.name)
	}
	return nil
}

func (m *Model) link(from, to NodeID) {
	m.deps[to] = append(m.deps[to], from)
	m.dependents[from] = append(m.dependents[from], to)
	if e := m.nodes[to]; e.kind == variableNode {
		e.v.dist = m.nodes[from].d
	}
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (m *Model) unlink(from, to NodeID) {
	m.deps[to] = removeID(m.deps[to], from)
	m.dependents[from] = removeID(m.dependents[from], to)
	if e := m.nodes[to]; e.kind == variableNode {
		e.v.dist = nil
	}
}

// UpdateEdge atomically replaces the edge oldFrom -> to with newFrom -> to.
// A nil oldFrom only adds; a nil newFrom only removes. It is allowed during
// construction and inside an open Transaction (where it marks to as needing
// re-evaluation); otherwise the topology is frozen.
func (m *Model) UpdateEdge(to Node, oldFrom, newFrom Node) error {
	if m.tx != nil {
		return m.tx.UpdateEdge(to, oldFrom, newFrom)
	}
	if m.phase != phaseConstructing && !m.restoring {
		return modelErrorf("UpdateEdge", "topology of model %s is frozen outside a transaction", m.Name)
	}
	return m.replaceEdge(to, oldFrom, newFrom)
}

func (m *Model) replaceEdge(to Node, oldFrom, newFrom Node) error {
	if !m.owns(to) {
		return modelErrorf("UpdateEdge", "node %v does not belong to model %s", to, m.Name)
	}
	if oldFrom != nil && !m.owns(oldFrom) {
		return modelErrorf("UpdateEdge", "node %v does not belong to model %s", oldFrom, m.Name)
	}
	if newFrom != nil && !m.owns(newFrom) {
		return modelErrorf("UpdateEdge", "node %v does not belong to model %s", newFrom, m.Name)
	}
	if oldFrom != nil && newFrom != nil && oldFrom.ID() == newFrom.ID() {
		return nil
	}

	if oldFrom != nil {
		found := false
		for _, d := range m.deps[to.ID()] {
			if d == oldFrom.ID() {
				found = true
				break
			}
		}
		if !found {
			return modelErrorf("UpdateEdge", "no edge %s -> %s to replace", oldFrom.Name(), to.Name())
		}
	}
	if newFrom != nil {
		if newFrom.ID() == to.ID() {
			return modelErrorf("UpdateEdge", "self edge on %s", to.Name())
		}
		if err := m.checkArity(newFrom, to, oldFrom); err != nil {
			return err
		}
	}

	if oldFrom != nil {
		m.unlink(oldFrom.ID(), to.ID())
	}
	if newFrom != nil {
		m.link(newFrom.ID(), to.ID())
		// Still ordered? Otherwise we need a new topological order.
		if m.rank != nil && m.rank[newFrom.ID()] >= m.rank[to.ID()] {
			m.orderStale = true
		}
	}
	return nil
}

// computeOrder is Kahn's algorithm, smallest NodeID first among ready nodes
// so the order is deterministic. A cycle is a ModelError.
func (m *Model) computeOrder() error {
	n := len(m.nodes)
	indeg := make([]int, n)
	for i := range m.nodes {
		indeg[i] = len(m.deps[i])
	}

	ready := make([]NodeID, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, NodeID(i))
		}
	}

	order := make([]NodeID, 0, n)
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dep := range m.dependents[id] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != n {
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				return modelErrorf("computeOrder", "cycle detected involving node %s", m.nodes[i].node().Name())
			}
		}
	}

	m.order = order
	m.rank = make([]int, n)
	for pos, id := range order {
		m.rank[id] = pos
	}
	m.orderStale = false
	return nil
}

// fullUpdate evaluates every node in topological order and recomputes the
// totals from scratch.
func (m *Model) fullUpdate() error {
	if m.orderStale {
		if err := m.computeOrder(); err != nil {
			return err
		}
	}

	var lp, ll float64
	for _, id := range m.order {
		e := m.nodes[id]
		switch e.kind {
		case variableNode:
			d := e.v.refresh()
			if !isFinite(d) {
				return errors.Errorf("Variable %s has invalid log density %v for value %+v", e.v.name, d, e.v.value)
			}
			if e.v.observed {
				ll += d
			} else {
				lp += d
			}
		case distributionNode:
			if _, err := e.d.Update(); err != nil {
				return errors.Wrapf(err, "Distribution %s", e.d.name)
			}
		case functionNode:
			if _, err := e.f.Update(); err != nil {
				return errors.Wrapf(err, "Function %s", e.f.name)
			}
		}
	}

	m.logPrior, m.logLikelihood = lp, ll
	return nil
}

// LogPrior is the committed sum of latent variables' log densities
func (m *Model) LogPrior() float64 { return m.logPrior }

// LogLikelihood is the committed sum of observed variables' log densities
func (m *Model) LogLikelihood() float64 { return m.logLikelihood }

// Variables returns every variable in creation order
func (m *Model) Variables() []*Variable {
	return append([]*Variable(nil), m.variables...)
}

// Variable looks up a variable by name
func (m *Model) Variable(name string) (*Variable, error) {
	id, ok := m.byName[name]
	if !ok || m.nodes[id].kind != variableNode {
		return nil, modelErrorf("Variable", "no variable %s in model %s", name, m.Name)
	}
	return m.nodes[id].v, nil
}

// Node looks up any node by name
func (m *Model) Node(name string) (Node, error) {
	id, ok := m.byName[name]
	if !ok {
		return nil, modelErrorf("Node", "no node %s in model %s", name, m.Name)
	}
	return m.nodes[id].node(), nil
}

// Dependencies returns the nodes n depends on
func (m *Model) Dependencies(n Node) []Node {
	if !m.owns(n) {
		return nil
	}
	out := make([]Node, 0, len(m.deps[n.ID()]))
	for _, id := range m.deps[n.ID()] {
		out = append(out, m.nodes[id].node())
	}
	return out
}

// Dependents returns the nodes that depend on n
func (m *Model) Dependents(n Node) []Node {
	if !m.owns(n) {
		return nil
	}
	out := make([]Node, 0, len(m.dependents[n.ID()]))
	for _, id := range m.dependents[n.ID()] {
		out = append(out, m.nodes[id].node())
	}
	return out
}

// Edges lists every edge, ordered by dependent then dependency
func (m *Model) Edges() []Edge {
	var out []Edge
	for to := range m.nodes {
		for _, from := range m.deps[to] {
			out = append(out, Edge{From: m.nodes[from].node().Name(), To: m.nodes[to].node().Name()})
		}
	}
	return out
}

// NodeCount is the number of nodes in the arena
func (m *Model) NodeCount() int { return len(m.nodes) }
