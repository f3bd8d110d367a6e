package app

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

// DefaultDisplayQueue is the number of samples buffered per display before
// new samples are dropped for it.
const DefaultDisplayQueue = 64

// errSinkStopped is returned by publish when the sink consumer has exited.
var errSinkStopped = errors.New("sample sink stopped")

// fanout delivers each sample to the sink and to every display.
//
// The sink channel is unbuffered: publish returns once the sink consumer
// has taken the sample, and the next publish blocks until that sample has
// been appended. Display queues are buffered and never block the producer.
type fanout struct {
	sink     chan domain.Sample
	sinkDone chan struct{}
	sinkErr  error
	written  atomic.Int64
	displays []*displayQueue
	closed   bool
}

func newFanout(displays []ports.Display, queue int) *fanout {
	if queue <= 0 {
		queue = DefaultDisplayQueue
	}
	f := &fanout{
		sink:     make(chan domain.Sample),
		sinkDone: make(chan struct{}),
	}
	for _, d := range displays {
		f.displays = append(f.displays, &displayQueue{
			display: d,
			ch:      make(chan domain.Sample, queue),
		})
	}
	return f
}

// publish hands s to the sink and offers it to every display.
// Returns the sink's error if the sink consumer is gone.
func (f *fanout) publish(s domain.Sample) error {
	select {
	case f.sink <- s:
	case <-f.sinkDone:
		return f.sinkError()
	}
	for _, q := range f.displays {
		select {
		case q.ch <- s:
		default:
			q.dropped.Add(1)
		}
	}
	return nil
}

// close ends all consumer loops. Only the producer calls it.
func (f *fanout) close() {
	if f.closed {
		return
	}
	f.closed = true
	close(f.sink)
	for _, q := range f.displays {
		close(q.ch)
	}
}

// dropped returns the total number of samples displays did not receive.
func (f *fanout) dropped() int64 {
	var n int64
	for _, q := range f.displays {
		n += q.dropped.Load()
	}
	return n
}

// appended returns the number of samples the sink accepted.
func (f *fanout) appended() int64 {
	return f.written.Load()
}

// sinkError returns why the sink consumer exited.
// Valid only after sinkDone is closed.
func (f *fanout) sinkError() error {
	if f.sinkErr != nil {
		return f.sinkErr
	}
	return errSinkStopped
}

// runSink appends samples until the channel closes or an append fails.
func (f *fanout) runSink(sink ports.SampleSink) (err error) {
	defer func() {
		f.sinkErr = err
		close(f.sinkDone)
	}()
	for s := range f.sink {
		if err := sink.Append(s); err != nil {
			return err
		}
		f.written.Add(1)
	}
	return nil
}

type displayQueue struct {
	display ports.Display
	ch      chan domain.Sample
	dropped atomic.Int64
	failed  atomic.Int64
}

// run feeds queued samples to the display. Errors and panics are logged
// and the display keeps receiving.
func (q *displayQueue) run(logger ports.Logger) {
	for s := range q.ch {
		if err := q.publish(s); err != nil {
			n := q.failed.Add(1)
			if n == 1 || n%100 == 0 {
				logger.Warn("display update failed",
					ports.String("display", q.display.Name()),
					ports.Int64("failures", n),
					ports.Err(err),
				)
			}
		}
	}
}

func (q *displayQueue) publish(s domain.Sample) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("display panic: %v", r)
		}
	}()
	return q.display.Publish(s)
}

// closeDisplay releases the display, recovering from panics.
func closeDisplay(d ports.Display) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("display panic on close: %v", r)
		}
	}()
	return d.Close()
}
