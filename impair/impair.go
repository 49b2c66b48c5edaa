// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package impair decides what happens to each packet.

A [*Policy] draws, for every packet, an independent [Decision]: either
drop the packet or forward it after a delay. The drop probability and
the delay bounds come from an immutable [Config].

# Randomness

Draws come from a [Source]. When no source is given, we use the
runtime-seeded generator of [math/rand/v2], which is safe for concurrent
use. An injected source is serialized by the [*Policy], so tests can use
a deterministic [*rand.Rand] from any number of goroutines.
*/
package impair

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrInvalidConfig indicates that a [Config] cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config configures the impairment.
type Config struct {
	// DropProbability is the probability of dropping a packet
	// and must be within [0, 1].
	DropProbability float64

	// MinDelay is the minimum forwarding delay.
	MinDelay time.Duration

	// MaxDelay is the maximum forwarding delay, which must
	// not be smaller than MinDelay.
	MaxDelay time.Duration
}

// Validate returns an error wrapping [ErrInvalidConfig] when the
// configuration is not valid.
func (c *Config) Validate() error {
	if math.IsNaN(c.DropProbability) || c.DropProbability < 0 || c.DropProbability > 1 {
		return fmt.Errorf("%w: %v is not a valid probability value", ErrInvalidConfig, c.DropProbability)
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("%w: negative minimum delay %s", ErrInvalidConfig, c.MinDelay)
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("%w: maximum delay %s is smaller than minimum delay %s",
			ErrInvalidConfig, c.MaxDelay, c.MinDelay)
	}
	return nil
}

// Decision is the fate of a single packet.
//
// Construct using [Drop] or [Forward].
type Decision struct {
	// Drop is true when the packet must be discarded.
	Drop bool

	// Delay is the forwarding delay, meaningful only when Drop is false.
	Delay time.Duration
}

// Drop returns a [Decision] to discard the packet.
func Drop() Decision {
	return Decision{Drop: true}
}

// Forward returns a [Decision] to forward the packet after delay.
func Forward(delay time.Duration) Decision {
	return Decision{Delay: delay}
}

// String returns the string representation of the decision.
func (d Decision) String() string {
	if d.Drop {
		return "drop"
	}
	return fmt.Sprintf("forward after %s", d.Delay)
}

// Source is a source of uniformly distributed random values.
//
// The [*rand.Rand] type implements this interface.
type Source interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64

	// Int64N returns a value in [0, n). It panics if n <= 0.
	Int64N(n int64) int64
}

// globalSource uses the top-level functions of [math/rand/v2].
type globalSource struct{}

func (globalSource) Float64() float64 {
	return rand.Float64()
}

func (globalSource) Int64N(n int64) int64 {
	return rand.Int64N(n)
}

// Policy draws a [Decision] for each packet.
//
// Construct using [NewPolicy]. A [*Policy] is safe for concurrent use.
type Policy struct {
	// config is the validated configuration.
	config Config

	// mu serializes draws from src when locked is true.
	mu sync.Mutex

	// locked is true when src was injected.
	locked bool

	// src is the random source.
	src Source
}

// NewPolicy validates the configuration and returns a new [*Policy]. A nil
// src selects the global concurrency-safe generator.
func NewPolicy(config *Config, src Source) (*Policy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	locked := src != nil
	if !locked {
		src = globalSource{}
	}
	return &Policy{config: *config, locked: locked, src: src}, nil
}

// Config returns a copy of the policy configuration.
func (p *Policy) Config() Config {
	return p.config
}

// Decide draws the [Decision] for the next packet.
func (p *Policy) Decide() Decision {
	if p.locked {
		p.mu.Lock()
		defer p.mu.Unlock()
	}

	if p.src.Float64() < p.config.DropProbability {
		return Drop()
	}

	// Both bounds are inclusive.
	delay := p.config.MinDelay
	if span := int64(p.config.MaxDelay - p.config.MinDelay); span > 0 {
		if span < math.MaxInt64 {
			span++
		}
		delay += time.Duration(p.src.Int64N(span))
	}
	return Forward(delay)
}
