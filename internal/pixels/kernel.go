package pixels

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"photoflow/internal/core"
)

// chunksPerThread keeps goroutines busy when rows cost unevenly.
const chunksPerThread = 4

// RowFunc transforms one row. Returning an error fails the whole kernel.
type RowFunc func(y int) error

// Kernel runs a RowFunc over the rows of an image on a bounded number of
// goroutines.
type Kernel struct {
	// Threads bounds concurrency; zero means runtime.NumCPU().
	Threads int
	// Sticky receives the first row error. When nil the kernel uses its own.
	Sticky *core.Sticky
	// Sync, when set, is called after each chunk of rows is done.
	Sync func() error
	// OnError is called once, by the task whose error set the flag.
	OnError func(err error)
}

// Run calls fn for every row in [0, rows). Cancellation and the sticky flag
// are polled before each row; once either is raised, remaining rows are
// skipped. It returns the first row error, else the context error.
func (k Kernel) Run(ctx context.Context, rows int, fn RowFunc) error {
	sticky := k.Sticky
	if sticky == nil {
		sticky = &core.Sticky{}
	}
	if rows <= 0 {
		return sticky.Err()
	}

	threads := k.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	chunk := rows / (threads * chunksPerThread)
	if chunk < 1 {
		chunk = 1
	}

	fail := func(err error) {
		if sticky.Set(err) && k.OnError != nil {
			k.OnError(err)
		}
	}

	var g errgroup.Group
	g.SetLimit(threads)
	for y0 := 0; y0 < rows; y0 += chunk {
		y1 := min(y0+chunk, rows)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				if sticky.IsSet() || ctx.Err() != nil {
					return nil
				}
				if err := fn(y); err != nil {
					fail(err)
					return nil
				}
			}
			if k.Sync != nil {
				if err := k.Sync(); err != nil {
					fail(err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := sticky.Err(); err != nil {
		return err
	}
	return ctx.Err()
}
