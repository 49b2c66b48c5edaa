// SPDX-License-Identifier: GPL-3.0-or-later

// Package closepool collects the cleanup actions of the command
// and runs them in a single operation.
package closepool

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// Pool runs cleanup actions in reverse registration order.
//
// The zero value is ready to use.
type Pool struct {
	// actions contains the cleanup actions.
	actions []func() error

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// Add registers an [io.Closer].
func (p *Pool) Add(closer io.Closer) {
	p.AddFunc(closer.Close)
}

// AddFunc registers a cleanup function.
func (p *Pool) AddFunc(fx func() error) {
	p.mu.Lock()
	p.actions = append(p.actions, fx)
	p.mu.Unlock()
}

// Close runs all the registered actions, the most recently added
// first, so that a socket registered before the metrics endpoint
// that reports about it is closed last. The returned error is the
// join of all the errors. Actions run at most once.
func (p *Pool) Close() error {
	p.mu.Lock()
	actions := p.actions
	p.actions = nil
	p.mu.Unlock()

	var errv []error
	for _, fx := range slices.Backward(actions) {
		if err := fx(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
