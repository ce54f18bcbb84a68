package sampler

import (
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
)

// PartitionProposer reassigns items of a partition variable. The kernel is
// chosen by the partition's (allowsEmptyGroups, useGibbs) flags:
//
//	empty allowed, Gibbs:  sweep items in random order, draw each from its
//	                       full heated conditional over all groups
//	empty allowed, MH:     move one item to a uniform other group
//	no empty, MH:          move a movable item (one whose group has two or
//	                       more) to the group of a uniformly chosen item
//	                       outside its own group, with the asymmetric
//	                       proposal ratio
//	no empty, Gibbs:       not implemented
type PartitionProposer struct {
	counter
	variable string
}

// NewPartitionProposer creates the proposer for partition variable name
func NewPartitionProposer(name string) *PartitionProposer {
	return &PartitionProposer{counter: counter{name: "partition(" + name + ")"}, variable: name}
}

// Tune implements Proposer; partition moves have no scale
func (p *PartitionProposer) Tune(float64) { p.windowRate() }

// Step implements Proposer
func (p *PartitionProposer) Step(ctx *Context) error {
	part, err := ctx.Model.Partition(p.variable)
	if err != nil {
		return err
	}
	if part.GroupCount() < 2 {
		return nil
	}

	switch {
	case part.AllowsEmptyGroups() && part.UseGibbs():
		return p.gibbsEmpty(ctx, part)
	case part.AllowsEmptyGroups():
		return p.mhEmpty(ctx, part)
	case !part.UseGibbs():
		return p.mhNoEmpty(ctx, part)
	}
	return errors.Wrapf(ErrNotImplemented, "%s: Gibbs sampling of partitions without empty groups", p.name)
}

func (p *PartitionProposer) gibbsEmpty(ctx *Context, part *model.PartitionVariable) error {
	k := part.GroupCount()
	logw := make([]float64, k)
	for _, item := range ctx.Gen.Perm(part.ItemCount()) {
		cur := part.Group(item)
		for g := 0; g < k; g++ {
			if g == cur {
				logw[g] = 0
				continue
			}
			g := g
			delta, ok, err := evaluate(ctx, func(tx *model.Transaction) error { return tx.Move(part, item, g) })
			if err != nil {
				return err
			}
			if !ok {
				delta = math.Inf(-1)
			}
			logw[g] = delta
		}

		pick := pickLog(ctx, logw, cur)
		if pick != cur {
			moved, err := commit(ctx, func(tx *model.Transaction) error { return tx.Move(part, item, pick) })
			if err != nil {
				return err
			}
			if !moved {
				p.record(ctx, Impossible)
				continue
			}
		}
		p.record(ctx, Accepted)
	}
	return nil
}

func (p *PartitionProposer) mhEmpty(ctx *Context, part *model.PartitionVariable) error {
	item := ctx.Gen.Intn(part.ItemCount())
	cur := part.Group(item)
	to := ctx.Gen.Intn(part.GroupCount() - 1)
	if to >= cur {
		to++
	}
	_, err := propose(ctx, &p.counter, func(tx *model.Transaction) (float64, error) {
		return 0, tx.Move(part, item, to)
	})
	return err
}

// mhNoEmpty proposes with
//
//	q(fwd) = 1/|M|  * s_h/(n - s_g)
//	q(bwd) = 1/|M'| * (s_g - 1)/(n - s_h - 1)
//
// where g is the item's group, h the target group, M the movable set
// before the move and M' after it.
func (p *PartitionProposer) mhNoEmpty(ctx *Context, part *model.PartitionVariable) error {
	movable := part.MovableCount()
	if movable == 0 {
		return nil
	}
	n := part.ItemCount()

	// uniform over movable items: group by movable size, then member
	r := ctx.Gen.Intn(movable)
	g := 0
	for ; g < part.GroupCount(); g++ {
		s := part.GroupSize(g)
		if s < 2 {
			continue
		}
		if r < s {
			break
		}
		r -= s
	}
	item := part.Member(g, r)
	sg := part.GroupSize(g)

	// target group of a uniform item outside g
	r = ctx.Gen.Intn(n - sg)
	h := 0
	for ; h < part.GroupCount(); h++ {
		if h == g {
			continue
		}
		s := part.GroupSize(h)
		if r < s {
			break
		}
		r -= s
	}
	sh := part.GroupSize(h)

	_, err := propose(ctx, &p.counter, func(tx *model.Transaction) (float64, error) {
		if err := tx.Move(part, item, h); err != nil {
			return 0, err
		}
		after := part.MovableCount()
		logFwd := -math.Log(float64(movable)) + math.Log(float64(sh)) - math.Log(float64(n-sg))
		logBwd := -math.Log(float64(after)) + math.Log(float64(sg-1)) - math.Log(float64(n-sh-1))
		return logBwd - logFwd, nil
	})
	return err
}
