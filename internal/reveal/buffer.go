// Package reveal rate-limits the display of streamed assistant text. Text
// arrives in bursty fragments; the buffer drains it to the transcript at a
// bounded, adaptive rate so output reads as typing without falling behind.
package reveal

import (
	"sync"
	"time"
)

// DefaultInterval is the drain tick period.
const DefaultInterval = 15 * time.Millisecond

// drainSize picks how many runes to reveal on one tick. A larger backlog
// drains faster so the display never lags far behind the stream.
func drainSize(backlog int) int {
	switch {
	case backlog > 1000:
		return 150
	case backlog > 400:
		return 40
	case backlog > 120:
		return 12
	default:
		return 5
	}
}

// TickerFunc supplies the drain tick channel and a stop function. Tests
// inject one to drive ticks manually.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Buffer accumulates assistant text and drains it through the out callback.
// It never drops or reorders characters. The out callback must not call
// back into the Buffer, and callers must not invoke Buffer methods from
// inside it.
type Buffer struct {
	mu       sync.Mutex
	backlog  []rune
	finished bool
	onDone   func()

	stopCh chan struct{}
	doneCh chan struct{}

	out       func(delta string)
	interval  time.Duration
	newTicker TickerFunc
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithInterval overrides the drain tick period.
func WithInterval(d time.Duration) Option {
	return func(b *Buffer) { b.interval = d }
}

// WithTickerFunc overrides the tick source.
func WithTickerFunc(fn TickerFunc) Option {
	return func(b *Buffer) { b.newTicker = fn }
}

// New creates a Buffer that delivers revealed text to out.
func New(out func(delta string), opts ...Option) *Buffer {
	b := &Buffer{
		out:       out,
		interval:  DefaultInterval,
		newTicker: realTicker,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue appends text to the backlog and starts the drain loop if one is
// not already running. The presence check guarantees a single loop per
// turn; double-draining would garble the reveal rate.
func (b *Buffer) Enqueue(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	b.backlog = append(b.backlog, []rune(text)...)
	b.finished = false
	if b.stopCh == nil {
		b.stopCh = make(chan struct{})
		b.doneCh = make(chan struct{})
		go b.loop(b.stopCh, b.doneCh)
	}
	b.mu.Unlock()
}

// Finish marks the end of the producing turn. The drain loop keeps
// revealing at the adaptive rate and exits once the backlog is empty;
// onDone runs after the final chunk has been delivered, so callers can
// sequence turn-end notifications behind the remaining reveal. With no
// loop running there is nothing left to reveal and onDone runs
// immediately. A later Flush supersedes the turn and drops the callback.
func (b *Buffer) Finish(onDone func()) {
	b.mu.Lock()
	b.finished = true
	running := b.stopCh != nil
	if running {
		b.onDone = onDone
	}
	b.mu.Unlock()

	if !running && onDone != nil {
		onDone()
	}
}

// Flush stops the drain loop and delivers any remaining backlog in a
// single atomic append. Used on cancellation and before a new turn so
// leftover text never interleaves with the next turn's output.
func (b *Buffer) Flush() {
	b.mu.Lock()
	stop, done := b.stopCh, b.doneCh
	b.stopCh, b.doneCh = nil, nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	b.mu.Lock()
	chunk := string(b.backlog)
	b.backlog = nil
	b.finished = false
	b.onDone = nil
	b.mu.Unlock()

	if chunk != "" {
		b.out(chunk)
	}
}

// Backlog reports the number of runes waiting to be revealed.
func (b *Buffer) Backlog() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.backlog)
}

func (b *Buffer) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	tick, stopTicker := b.newTicker(b.interval)
	defer stopTicker()

	for {
		select {
		case <-stop:
			return
		case <-tick:
			chunk, exit := b.drainOnce()
			if chunk != "" {
				b.out(chunk)
			}
			if exit {
				if fn, ok := b.retire(); ok {
					if fn != nil {
						fn()
					}
					return
				}
			}
		}
	}
}

// drainOnce removes one adaptive chunk from the backlog. It reports true
// when the turn has finished and the backlog is drained, which ends the
// loop.
func (b *Buffer) drainOnce() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := drainSize(len(b.backlog))
	if n > len(b.backlog) {
		n = len(b.backlog)
	}
	chunk := string(b.backlog[:n])
	b.backlog = b.backlog[n:]

	if b.finished && len(b.backlog) == 0 {
		return chunk, true
	}
	return chunk, false
}

// retire clears the loop handles so a later Enqueue starts a fresh loop,
// handing back the finish callback for the loop to run outside the lock.
// It refuses to retire if text arrived after the final drain.
func (b *Buffer) retire() (func(), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.backlog) > 0 {
		return nil, false
	}
	b.stopCh, b.doneCh = nil, nil
	fn := b.onDone
	b.onDone = nil
	return fn, true
}
