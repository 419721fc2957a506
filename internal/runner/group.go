package runner

import (
	"context"
	"sync"

	"github.com/logtube/elkamqp/internal/errutil"
)

// Group runs Runnables together, the first one to return cancels the others
type Group interface {
	Add(r Runnable)
	Len() int
	Run(ctx context.Context) error
}

func NewGroup(rs ...Runnable) Group {
	g := &group{}
	for _, r := range rs {
		g.Add(r)
	}
	return g
}

type group struct {
	rs []Runnable
}

func (g *group) Add(r Runnable) {
	if r == nil {
		return
	}
	g.rs = append(g.rs, r)
}

func (g *group) Len() int {
	return len(g.rs)
}

// Run blocks until every Runnable returned, errors are combined
func (g *group) Run(ctx context.Context) error {
	if len(g.rs) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(g.rs) == 1 {
		return g.rs[0].Run(ctx)
	}

	eg := errutil.SafeGroup()
	wg := &sync.WaitGroup{}
	for _, r := range g.rs {
		wg.Add(1)
		go func(r Runnable) {
			defer wg.Done()
			eg.Add(r.Run(ctx))
			cancel()
		}(r)
	}
	wg.Wait()
	return eg.Err()
}
