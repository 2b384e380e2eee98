package writer

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// workerPool compresses closed cluster builders in the background and
// flushes them, strictly in hand-off order, to the output file. N
// compression workers race each other; exactly one writer goroutine drains
// toWrite so file offsets come out monotonic.
type workerPool struct {
	tasks    taskQueue
	toWrite  toWriteQueue
	group    *errgroup.Group
	ctx      context.Context
	out      io.Writer
	position uint64
}

func newWorkerPool(ctx context.Context, numWorkers int, out io.Writer, startPosition uint64) *workerPool {
	g, gctx := errgroup.WithContext(ctx)
	wp := &workerPool{
		tasks:    newTaskQueue(),
		toWrite:  newToWriteQueue(),
		group:    g,
		ctx:      gctx,
		out:      out,
		position: startPosition,
	}
	for i := 0; i < numWorkers; i++ {
		g.Go(wp.runWorker)
	}
	g.Go(wp.runWriter)
	return wp
}

func (wp *workerPool) runWorker() error {
	for {
		select {
		case <-wp.ctx.Done():
			return wp.ctx.Err()
		case b, ok := <-wp.tasks:
			if !ok {
				return nil
			}
			b.serialize()
		}
	}
}

func (wp *workerPool) runWriter() error {
	for {
		select {
		case <-wp.ctx.Done():
			return wp.ctx.Err()
		case b, ok := <-wp.toWrite:
			if !ok {
				return nil
			}
			select {
			case <-b.done:
			case <-wp.ctx.Done():
				return wp.ctx.Err()
			}
			if b.serializeErr != nil {
				return b.serializeErr
			}
			b.Offset = wp.position
			n, err := wp.out.Write(b.final)
			if err != nil {
				return zimerror.Wrapf(zimerror.ErrIO, "write cluster", err)
			}
			wp.position += uint64(n)
			b.final = nil // free transient serialized bytes once flushed
		}
	}
}

// Submit hands a closed builder off for compression and schedules it for
// writing in hand-off order.
func (wp *workerPool) Submit(b *ClusterBuilder) {
	wp.toWrite <- b
	wp.tasks <- b
}

// Close stops accepting new builders and waits for every worker and the
// writer goroutine to finish, returning the first error encountered.
func (wp *workerPool) Close() (uint64, error) {
	close(wp.tasks)
	close(wp.toWrite)
	err := wp.group.Wait()
	return wp.position, err
}
