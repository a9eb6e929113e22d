package player

import "sync"

// parker is a sticky wakeup signal, the Go analogue of thread::park /
// thread::unpark: Unpark sets a permit that the next Park consumes
// immediately without blocking, so a wakeup that arrives before its
// matching Park is never lost. Used by the decoder and playback loops in
// place of condition-variable waits tied to a particular predicate, since
// their wake conditions ("maybe needs_decode now", "maybe the queue isn't
// empty now") are cheaper to just recheck than to encode as a Cond.
type parker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending bool
}

func newParker() *parker {
	p := &parker{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Park blocks until the next Unpark, or returns immediately if an Unpark
// already arrived since the last Park.
func (p *parker) Park() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.pending {
		p.cond.Wait()
	}
	p.pending = false
}

// Unpark wakes a blocked Park, or arms the permit for the next one.
func (p *parker) Unpark() {
	p.mu.Lock()
	p.pending = true
	p.mu.Unlock()
	p.cond.Signal()
}
