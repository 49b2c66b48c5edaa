// SPDX-License-Identifier: GPL-3.0-or-later

// Command shuffler is a UDP redirector that drops, delays, and
// reorders the datagrams it forwards.
//
// Clients prepend the final destination to each datagram: four bytes of
// IPv4 address followed by two bytes of port, both in network byte order.
// The shuffler strips this header and forwards the rest of the datagram
// to the destination from its listening socket.
package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rbmk-project/shuffler/impair"
	"github.com/rbmk-project/shuffler/logx"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// options contains the command line options.
type options struct {
	port           uint16
	drop           float64
	minDelay       uint64
	maxDelay       uint64
	randDelay      uint64
	verbosity      int
	timestamp      logx.TimestampMode
	metricsAddress string
	recvBuffer     int
}

// maxDelayMillis is the largest delay, in milliseconds, that
// a [time.Duration] can represent.
const maxDelayMillis = math.MaxInt64 / int64(time.Millisecond)

// millis converts a delay flag to a [time.Duration].
func millis(name string, value uint64) (time.Duration, error) {
	if value > uint64(maxDelayMillis) {
		return 0, fmt.Errorf("%w: --%s %d exceeds the maximum of %d milliseconds",
			impair.ErrInvalidConfig, name, value, maxDelayMillis)
	}
	return time.Duration(value) * time.Millisecond, nil
}

// impairment returns the [impair.Config] selected by the options.
func (o *options) impairment(maxDelaySet bool) (impair.Config, error) {
	minDelay, err := millis("min-delay", o.minDelay)
	if err != nil {
		return impair.Config{}, err
	}
	if !maxDelaySet && o.randDelay > uint64(maxDelayMillis)-o.minDelay {
		return impair.Config{}, fmt.Errorf(
			"%w: --min-delay %d plus --rand-delay %d exceeds the maximum of %d milliseconds",
			impair.ErrInvalidConfig, o.minDelay, o.randDelay, maxDelayMillis)
	}
	maxValue := o.minDelay + o.randDelay
	if maxDelaySet {
		maxValue = o.maxDelay
	}
	maxDelay, err := millis("max-delay", maxValue)
	if err != nil {
		return impair.Config{}, err
	}
	return impair.Config{
		DropProbability: o.drop,
		MinDelay:        minDelay,
		MaxDelay:        maxDelay,
	}, nil
}

// newCommand creates the root command.
func newCommand(stderr io.Writer, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shuffler [flags]",
		Short: "UDP redirector that drops, delays and reorders datagrams",
		Long: `A shuffling redirector for testing UDP protocols.

Received datagrams must carry the destination IPv4 address in their first
four bytes and the destination port in the fifth and sixth bytes, all of
them in network byte order. The shuffler strips these six bytes and sends
the rest to the destination after a random delay, unless it decides to
drop the datagram. Since each datagram gets its own delay, datagrams can
leave in a different order than they arrived.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			config, err := opts.impairment(cmd.Flags().Changed("max-delay"))
			if err != nil {
				return err
			}
			return serve(ctx, opts, &config, stderr)
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.SetNormalizeFunc(underscoreToDash)
	flags.Uint16VarP(&opts.port, "port", "p", 2019, "listening port")
	flags.Float64VarP(&opts.drop, "drop", "d", 0, "packet drop probability")
	flags.Uint64VarP(&opts.minDelay, "min-delay", "m", 0, "minimum packet delay, in milliseconds")
	flags.Uint64VarP(&opts.maxDelay, "max-delay", "M", 0, "maximum packet delay, in milliseconds")
	flags.Uint64VarP(&opts.randDelay, "rand-delay", "r", 0,
		"packet delay randomness, in milliseconds (the maximum delay is min-delay + rand-delay)")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "increase verbosity (repeat for more)")
	flags.VarP(&opts.timestamp, "timestamp", "t", "log timestamp precision")
	flags.StringVar(&opts.metricsAddress, "metrics-address", "",
		"optional TCP address where to expose Prometheus metrics (e.g., 127.0.0.1:9090)")
	flags.IntVar(&opts.recvBuffer, "recv-buffer", 0, "optional socket receive buffer size, in bytes")
	cmd.MarkFlagsMutuallyExclusive("max-delay", "rand-delay")
	return cmd
}

// underscoreToDash accepts flags such as --min_delay.
func underscoreToDash(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// run executes the command and returns the exit code.
func run(args []string, stderr io.Writer) int {
	cmd := newCommand(stderr, &options{timestamp: logx.TimestampNone})
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "shuffler: %s\n", err)
		return 1
	}
	return 0
}
