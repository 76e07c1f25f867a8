package syncer

import "sync"

// oneShot is a single-slot signal: the first resolve wins, later ones are ignored.
type oneShot struct {
	once sync.Once
	ch   chan error
}

func newOneShot() *oneShot {
	return &oneShot{ch: make(chan error, 1)}
}

// resolve stores err if nothing was stored yet and reports whether it did.
func (o *oneShot) resolve(err error) bool {
	won := false
	o.once.Do(func() {
		o.ch <- err
		won = true
	})
	return won
}

// C yields the winning value once.
func (o *oneShot) C() <-chan error {
	return o.ch
}
