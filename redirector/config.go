//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Redirector configuration.
//

package redirector

import (
	"log/slog"
	"time"

	"github.com/rbmk-project/shuffler/impair"
	"github.com/rbmk-project/shuffler/metrics"
	"github.com/rbmk-project/shuffler/netcore"
)

// DefaultAddress is the default listening address.
const DefaultAddress = ":2019"

// Config contains the [*Server] configuration.
//
// Only the Impairment field needs to be set; everything else has
// sensible defaults. Do not modify a [*Config] after passing it to [Listen].
type Config struct {
	// Address is the UDP address to listen on. If empty, we
	// use [DefaultAddress].
	Address string

	// Impairment is the drop and delay configuration.
	Impairment impair.Config

	// Timestamps enables recording the receive time of packets.
	Timestamps bool

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Metrics contains the optional collectors.
	Metrics *metrics.Metrics

	// Source is the optional random source. If nil, we use
	// the global concurrency-safe generator.
	Source impair.Source

	// Network is the optional [*netcore.Network] for binding the
	// socket. If nil, we construct one using Logger and TimeNow.
	Network *netcore.Network

	// TimeNow is an optional function that returns the current time.
	// If this field is nil, the [time.Now] function will be used.
	TimeNow func() time.Time
}

// Validate returns an error wrapping [impair.ErrInvalidConfig] when
// the configuration cannot be used.
func (c *Config) Validate() error {
	return c.Impairment.Validate()
}

func (c *Config) address() string {
	if c.Address != "" {
		return c.Address
	}
	return DefaultAddress
}

func (c *Config) network() *netcore.Network {
	if c.Network != nil {
		return c.Network
	}
	return &netcore.Network{Logger: c.Logger, TimeNow: c.TimeNow}
}
