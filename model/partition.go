package model

import (
	"sort"
)

// Associator keeps structure derived from a partition in sync with it. It
// is called after item has been placed in group, both when a move is
// proposed and when a rejected move is undone. Implementations usually
// call Model.UpdateEdge to repoint a co-variable at its group's law.
type Associator interface {
	Associate(item, group int) error
}

// AssociatorFunc adapts a function to Associator
type AssociatorFunc func(item, group int) error

// Associate implements Associator
func (f AssociatorFunc) Associate(item, group int) error { return f(item, group) }

// PartitionVariable assigns each of n items to one of k groups. The value
// is the int-array assignment; membership lists are kept sorted so group
// sizes are O(1) and member lookup is deterministic.
type PartitionVariable struct {
	*Variable

	k           int
	allowsEmpty bool
	useGibbs    bool

	members     [][]int
	movable     int // items in groups of size >= 2
	associators []Associator
}

// AddPartition adds a latent partition variable with the given initial
// assignment over groups groups.
func (m *Model) AddPartition(name string, assignment []int, groups int, allowsEmpty, useGibbs bool) (*PartitionVariable, error) {
	if groups < 1 {
		return nil, modelErrorf("AddPartition", "partition %s needs at least one group", name)
	}
	if len(assignment) < 1 {
		return nil, modelErrorf("AddPartition", "partition %s needs at least one item", name)
	}
	members := make([][]int, groups)
	for item, g := range assignment {
		if g < 0 || g >= groups {
			return nil, modelErrorf("AddPartition", "item %d of %s assigned to invalid group %d", item, name, g)
		}
		members[g] = append(members[g], item)
	}
	if !allowsEmpty {
		for g := range members {
			if len(members[g]) == 0 {
				return nil, modelErrorf("AddPartition", "group %d of %s is empty", g, name)
			}
		}
	}

	v, err := m.AddVariable(name, IntsValue(assignment), false)
	if err != nil {
		return nil, err
	}
	p := &PartitionVariable{
		Variable:    v,
		k:           groups,
		allowsEmpty: allowsEmpty,
		useGibbs:    useGibbs,
		members:     members,
		associators: make([]Associator, len(assignment)),
	}
	p.countMovable()
	v.part = p
	return p, nil
}

func (p *PartitionVariable) countMovable() {
	p.movable = 0
	for _, mem := range p.members {
		if len(mem) >= 2 {
			p.movable += len(mem)
		}
	}
}

// SetAssociator registers the callback for one item (construction only)
func (p *PartitionVariable) SetAssociator(item int, a Associator) error {
	if err := p.model.checkConstructing("SetAssociator"); err != nil {
		return err
	}
	if item < 0 || item >= len(p.associators) {
		return modelErrorf("SetAssociator", "partition %s has no item %d", p.name, item)
	}
	p.associators[item] = a
	return nil
}

// Group of item
func (p *PartitionVariable) Group(item int) int { return p.value.Ints[item] }

// GroupSize is the number of items in group g
func (p *PartitionVariable) GroupSize(g int) int { return len(p.members[g]) }

// Member returns the i-th smallest item in group g
func (p *PartitionVariable) Member(g, i int) int { return p.members[g][i] }

// GroupCount is k
func (p *PartitionVariable) GroupCount() int { return p.k }

// ItemCount is n
func (p *PartitionVariable) ItemCount() int { return len(p.value.Ints) }

// MovableCount is the number of items in groups holding at least two items
func (p *PartitionVariable) MovableCount() int { return p.movable }

// AllowsEmptyGroups is false if every group must keep at least one item
func (p *PartitionVariable) AllowsEmptyGroups() bool { return p.allowsEmpty }

// UseGibbs selects the Gibbs kernel over MH
func (p *PartitionVariable) UseGibbs() bool { return p.useGibbs }

// GroupSizes returns a copy of all group sizes
func (p *PartitionVariable) GroupSizes() []int {
	sizes := make([]int, p.k)
	for g := range p.members {
		sizes[g] = len(p.members[g])
	}
	return sizes
}

func (p *PartitionVariable) adjustMovable(size, delta int) {
	before := size
	after := size + delta
	if before >= 2 {
		p.movable -= before
	}
	if after >= 2 {
		p.movable += after
	}
}

// move updates assignment and membership without callbacks
func (p *PartitionVariable) move(item, to int) {
	from := p.value.Ints[item]
	if from == to {
		return
	}

	src := p.members[from]
	i := sort.SearchInts(src, item)
	p.adjustMovable(len(src), -1)
	p.members[from] = append(src[:i], src[i+1:]...)

	dst := p.members[to]
	j := sort.SearchInts(dst, item)
	p.adjustMovable(len(dst), 1)
	dst = append(dst, 0)
	copy(dst[j+1:], dst[j:])
	dst[j] = item
	p.members[to] = dst

	p.value.Ints[item] = to
}

func (p *PartitionVariable) associate(item, group int) error {
	a := p.associators[item]
	if a == nil {
		return nil
	}
	return a.Associate(item, group)
}

// rebuild resets membership from a full assignment, calling associators for
// every item whose group changed.
func (p *PartitionVariable) rebuild(assignment []int) error {
	if len(assignment) != p.ItemCount() {
		return modelErrorf("Restore", "partition %s has %d items, got %d", p.name, p.ItemCount(), len(assignment))
	}
	for item, g := range assignment {
		if g < 0 || g >= p.k {
			return modelErrorf("Restore", "item %d of %s assigned to invalid group %d", item, p.name, g)
		}
	}
	for item, g := range assignment {
		if p.Group(item) == g {
			continue
		}
		p.move(item, g)
		if err := p.associate(item, g); err != nil {
			return err
		}
	}
	return nil
}

// Partition looks up a partition variable by name
func (m *Model) Partition(name string) (*PartitionVariable, error) {
	v, err := m.Variable(name)
	if err != nil {
		return nil, err
	}
	if v.part == nil {
		return nil, modelErrorf("Partition", "variable %s is not a partition", name)
	}
	return v.part, nil
}
