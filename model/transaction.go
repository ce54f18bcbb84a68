package model

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

type txPhase int

const (
	txProposing txPhase = iota
	txProposed
	txRejecting
	txDone
)

type partitionMove struct {
	p    *PartitionVariable
	item int
	from int
}

// Transaction is one tentative mutation of a Model. The protocol is an
// explicit two phase commit:
//
//	tx, _ := m.BeginProposal()
//	tx.SetFloat(v, x)           // mutate one or more values
//	err := tx.EndProposal()     // propagate, compute tentative totals
//	tx.Accept()                 // commit, or
//	tx.Reject()                 // BeginRejection + EndRejection
//
// EndProposal returns ErrImpossible when the new state cannot be evaluated;
// such a transaction can only be rejected. Rejection restores mutated values
// and then calls UpdateAfterRejection on every node that was updated, so
// cached densities come back in O(1) per node and the committed totals are
// never touched.
type Transaction struct {
	m     *Model
	phase txPhase

	mutated   []*Variable
	moves     []partitionMove
	edgeDirty []NodeID
	updated   []NodeID

	logPrior      float64
	logLikelihood float64
	impossible    bool
}

// BeginProposal opens a transaction. Only one may be open per model.
func (m *Model) BeginProposal() (*Transaction, error) {
	if m.phase != phaseReady {
		return nil, modelErrorf("BeginProposal", "model %s construction has not ended", m.Name)
	}
	if m.tx != nil {
		return nil, modelErrorf("BeginProposal", "model %s already has an open transaction", m.Name)
	}
	tx := &Transaction{
		m:             m,
		phase:         txProposing,
		logPrior:      m.logPrior,
		logLikelihood: m.logLikelihood,
	}
	m.tx = tx
	return tx, nil
}

// Model returns the model this transaction mutates
func (tx *Transaction) Model() *Model { return tx.m }

func (tx *Transaction) checkPhase(op string, want txPhase) error {
	if tx.phase != want {
		return modelErrorf(op, "transaction is in phase %d, need %d", tx.phase, want)
	}
	return nil
}

func (tx *Transaction) markMutated(v *Variable) {
	if v.dirty {
		return
	}
	v.dirty = true
	if v.part == nil {
		v.prev = v.value.Clone()
	}
	tx.mutated = append(tx.mutated, v)
}

// Set replaces the value of v. The kind must match the current kind.
func (tx *Transaction) Set(v *Variable, val Value) error {
	if err := tx.checkPhase("Set", txProposing); err != nil {
		return err
	}
	if !tx.m.owns(v) {
		return modelErrorf("Set", "variable %s does not belong to model %s", v.name, tx.m.Name)
	}
	if v.part != nil {
		return modelErrorf("Set", "partition variable %s must be changed with Move", v.name)
	}
	if val.Kind != v.value.Kind || val.Len() != v.value.Len() {
		return modelErrorf("Set", "variable %s holds %s[%d], got %s[%d]", v.name, v.value.Kind, v.value.Len(), val.Kind, val.Len())
	}
	tx.markMutated(v)
	v.value = val.Clone()
	return nil
}

// SetFloat sets a float variable
func (tx *Transaction) SetFloat(v *Variable, x float64) error {
	return tx.Set(v, FloatValue(x))
}

// SetInt sets an int variable
func (tx *Transaction) SetInt(v *Variable, i int) error {
	return tx.Set(v, IntValue(i))
}

// SetBool sets a bool variable
func (tx *Transaction) SetBool(v *Variable, b bool) error {
	return tx.Set(v, BoolValue(b))
}

// SetFloatAt sets component i of a float or float-array variable
func (tx *Transaction) SetFloatAt(v *Variable, i int, x float64) error {
	if v.value.Kind == KindFloat && i == 0 {
		return tx.SetFloat(v, x)
	}
	if v.value.Kind != KindFloatArray || i < 0 || i >= len(v.value.Floats) {
		return modelErrorf("SetFloatAt", "variable %s has no float component %d", v.name, i)
	}
	if err := tx.checkPhase("SetFloatAt", txProposing); err != nil {
		return err
	}
	if !tx.m.owns(v) {
		return modelErrorf("SetFloatAt", "variable %s does not belong to model %s", v.name, tx.m.Name)
	}
	tx.markMutated(v)
	v.value.Floats[i] = x
	return nil
}

// Move reassigns one item of a partition variable to group, invoking the
// item's associator.
func (tx *Transaction) Move(p *PartitionVariable, item, group int) error {
	if err := tx.checkPhase("Move", txProposing); err != nil {
		return err
	}
	if !tx.m.owns(p.Variable) {
		return modelErrorf("Move", "partition %s does not belong to model %s", p.name, tx.m.Name)
	}
	if item < 0 || item >= p.ItemCount() || group < 0 || group >= p.k {
		return modelErrorf("Move", "invalid move of item %d to group %d in %s", item, group, p.name)
	}

	from := p.Group(item)
	if from == group {
		return nil
	}
	if !p.allowsEmpty && p.GroupSize(from) == 1 {
		return modelErrorf("Move", "moving item %d would empty group %d of %s", item, from, p.name)
	}

	tx.markMutated(p.Variable)
	tx.moves = append(tx.moves, partitionMove{p: p, item: item, from: from})
	p.move(item, group)
	return p.associate(item, group)
}

// UpdateEdge replaces oldFrom -> to with newFrom -> to. While proposing, to
// is scheduled for re-evaluation; while rejecting (associators restoring
// membership) the edge is simply rewired.
func (tx *Transaction) UpdateEdge(to Node, oldFrom, newFrom Node) error {
	if tx.phase != txProposing && tx.phase != txRejecting {
		return modelErrorf("UpdateEdge", "edges may only change while proposing or rejecting")
	}
	if err := tx.m.replaceEdge(to, oldFrom, newFrom); err != nil {
		return err
	}
	if tx.phase == txProposing {
		tx.edgeDirty = append(tx.edgeDirty, to.ID())
	}
	return nil
}

// EndProposal walks the graph in topological order from every mutated node
// to its transitive dependents, updating each affected node once and
// accumulating tentative totals. A node is updated when it was mutated or
// rewired, or when one of its dependencies reported a change. It returns
// ErrImpossible if any update fails or any density/total is not finite.
func (tx *Transaction) EndProposal() error {
	if err := tx.checkPhase("EndProposal", txProposing); err != nil {
		return err
	}
	tx.phase = txProposed
	m := tx.m

	if m.orderStale {
		if err := m.computeOrder(); err != nil {
			tx.impossible = true
			return errors.Wrap(ErrImpossible, err.Error())
		}
	}

	seeds := make(map[NodeID]bool, len(tx.mutated)+len(tx.edgeDirty))
	for _, v := range tx.mutated {
		seeds[v.id] = true
	}
	for _, id := range tx.edgeDirty {
		seeds[id] = true
	}

	// Everything reachable from the seeds, visited in rank order
	reach := make(map[NodeID]bool, len(seeds))
	stack := make([]NodeID, 0, len(seeds))
	for id := range seeds {
		reach[id] = true
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range m.dependents[id] {
			if !reach[dep] {
				reach[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	visit := make([]NodeID, 0, len(reach))
	for id := range reach {
		visit = append(visit, id)
	}
	sort.Slice(visit, func(i, j int) bool { return m.rank[visit[i]] < m.rank[visit[j]] })

	changed := make(map[NodeID]bool, len(visit))
	for _, id := range visit {
		if !seeds[id] {
			need := false
			for _, d := range m.deps[id] {
				if changed[d] {
					need = true
					break
				}
			}
			if !need {
				continue
			}
		}

		tx.updated = append(tx.updated, id)
		e := m.nodes[id]
		switch e.kind {
		case variableNode:
			v := e.v
			d := v.refresh()
			if !isFinite(d) {
				tx.impossible = true
				return errors.Wrapf(ErrImpossible, "variable %s density %v", v.name, d)
			}
			delta := d - v.prevLogP
			if v.observed {
				tx.logLikelihood += delta
			} else {
				tx.logPrior += delta
			}
			changed[id] = v.dirty
		case distributionNode:
			c, err := e.d.Update()
			if err != nil {
				tx.impossible = true
				return errors.Wrapf(ErrImpossible, "distribution %s: %v", e.d.name, err)
			}
			changed[id] = c
		case functionNode:
			c, err := e.f.Update()
			if err != nil {
				tx.impossible = true
				return errors.Wrapf(ErrImpossible, "function %s: %v", e.f.name, err)
			}
			changed[id] = c
		}
	}

	if !isFinite(tx.logPrior) || !isFinite(tx.logLikelihood) {
		tx.impossible = true
		return errors.Wrapf(ErrImpossible, "totals prior=%v likelihood=%v", tx.logPrior, tx.logLikelihood)
	}
	return nil
}

// Impossible is true when EndProposal reported ErrImpossible
func (tx *Transaction) Impossible() bool { return tx.impossible }

// LogPrior is the tentative prior total after EndProposal
func (tx *Transaction) LogPrior() float64 { return tx.logPrior }

// LogLikelihood is the tentative likelihood total after EndProposal
func (tx *Transaction) LogLikelihood() float64 { return tx.logLikelihood }

// DeltaLogPrior is tentative minus committed prior
func (tx *Transaction) DeltaLogPrior() float64 { return tx.logPrior - tx.m.logPrior }

// DeltaLogLikelihood is tentative minus committed likelihood
func (tx *Transaction) DeltaLogLikelihood() float64 {
	return tx.logLikelihood - tx.m.logLikelihood
}

// Accept commits the tentative totals and closes the transaction
func (tx *Transaction) Accept() error {
	if err := tx.checkPhase("Accept", txProposed); err != nil {
		return err
	}
	if tx.impossible {
		return modelErrorf("Accept", "an impossible proposal can not be accepted")
	}

	m := tx.m
	m.logPrior = tx.logPrior
	m.logLikelihood = tx.logLikelihood
	for _, v := range tx.mutated {
		v.dirty = false
		v.prev = Value{}
	}
	tx.close()
	return nil
}

// BeginRejection starts rolling back. It may be called after EndProposal or
// directly while proposing to abandon a move.
func (tx *Transaction) BeginRejection() error {
	if tx.phase != txProposing && tx.phase != txProposed {
		return modelErrorf("BeginRejection", "transaction is in phase %d", tx.phase)
	}
	tx.phase = txRejecting
	return nil
}

// EndRejection restores mutated values (undoing partition moves in reverse
// order, which re-runs associators) and then restores each updated node's
// cached state without recomputing.
func (tx *Transaction) EndRejection() error {
	if err := tx.checkPhase("EndRejection", txRejecting); err != nil {
		return err
	}

	var firstErr error
	for i := len(tx.moves) - 1; i >= 0; i-- {
		mv := tx.moves[i]
		mv.p.move(mv.item, mv.from)
		if err := mv.p.associate(mv.item, mv.from); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, v := range tx.mutated {
		if v.part == nil {
			v.value = v.prev
		}
		v.prev = Value{}
		v.dirty = false
	}

	m := tx.m
	for i := len(tx.updated) - 1; i >= 0; i-- {
		e := m.nodes[tx.updated[i]]
		switch e.kind {
		case variableNode:
			e.v.restoreLogP()
		case distributionNode:
			e.d.UpdateAfterRejection()
		case functionNode:
			e.f.UpdateAfterRejection()
		}
	}

	tx.close()
	return firstErr
}

// Reject is BeginRejection followed by EndRejection
func (tx *Transaction) Reject() error {
	if err := tx.BeginRejection(); err != nil {
		return err
	}
	return tx.EndRejection()
}

func (tx *Transaction) close() {
	tx.phase = txDone
	tx.m.tx = nil
}

// HeatedDelta is tp*ΔlogPrior + tl*ΔlogLikelihood, treating a zero exponent
// times an infinite delta as zero.
func (tx *Transaction) HeatedDelta(tp, tl float64) float64 {
	return heated(tp, tx.DeltaLogPrior()) + heated(tl, tx.DeltaLogLikelihood())
}

func heated(t, d float64) float64 {
	if t == 0 || d == 0 {
		return 0
	}
	if math.IsInf(t, 1) {
		return math.Inf(int(math.Copysign(1, d)))
	}
	return t * d
}
