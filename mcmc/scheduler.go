package mcmc

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// scheduler runs the tasks of one step on a bounded pool. Each chain has a
// mutex; a task holds the mutexes of every chain it names, taken in id
// order, so tasks sharing a chain serialize and disjoint tasks overlap.
type scheduler struct {
	threads int
	locks   []sync.Mutex
}

func newScheduler(threads, chains int) *scheduler {
	if threads < 1 {
		threads = 1
	}
	return &scheduler{
		threads: threads,
		locks:   make([]sync.Mutex, chains),
	}
}

// chainSet returns the sorted, de-duplicated chain ids of a task
func (s *scheduler) chainSet(t Task) ([]int, error) {
	ids := append([]int(nil), t.Chains...)
	sort.Ints(ids)
	out := ids[:0]
	for i, id := range ids {
		if id < 0 || id >= len(s.locks) {
			return nil, errors.Errorf("Task names chain %d, only %d chains", id, len(s.locks))
		}
		if i > 0 && ids[i-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// run executes tasks and waits for all of them. The first error is
// returned; tasks already started still finish.
func (s *scheduler) run(tasks []Task) error {
	sets := make([][]int, len(tasks))
	for i, t := range tasks {
		ids, err := s.chainSet(t)
		if err != nil {
			return err
		}
		sets[i] = ids
	}

	var g errgroup.Group
	g.SetLimit(s.threads)
	for i, t := range tasks {
		ids, run := sets[i], t.Run
		g.Go(func() error {
			for _, id := range ids {
				s.locks[id].Lock()
			}
			defer func() {
				for j := len(ids) - 1; j >= 0; j-- {
					s.locks[ids[j]].Unlock()
				}
			}()
			return run()
		})
	}
	return g.Wait()
}
