// Command order-watch waits for the payment outcome of an order, the way the
// checkout page does after an STK push.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/pkg/orderclient"
)

// Exit codes.
const (
	exitPaid = iota
	exitError
	exitNotPaid
	exitInconclusive
)

func main() {
	var (
		apiURL   string
		token    string
		interval time.Duration
		timeout  time.Duration
		verbose  bool
	)
	flag.StringVar(&apiURL, "api", "http://localhost:8080", "API base URL")
	flag.StringVar(&token, "token", "", "session token (or BITE_TOKEN env)")
	flag.DurationVar(&interval, "interval", 3*time.Second, "poll interval")
	flag.DurationVar(&timeout, "timeout", 120*time.Second, "give up after")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <order-id>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(exitError)
	}
	if token == "" {
		token = os.Getenv("BITE_TOKEN")
	}

	lg := newLogger(verbose)
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	os.Exit(run(ctx, lg, apiURL, token, flag.Arg(0), orderclient.PollConfig{
		Interval: interval,
		Timeout:  timeout,
	}))
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !verbose {
		cfg.Level.SetLevel(zap.InfoLevel)
	}
	lg, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return lg
}

func run(ctx context.Context, lg *zap.Logger, apiURL, token, orderID string, cfg orderclient.PollConfig) int {
	client, err := orderclient.New(apiURL, token, nil)
	if err != nil {
		lg.Error("Invalid API URL", zap.Error(err))
		return exitError
	}

	lg.Info("Waiting for payment", zap.String("order_id", orderID), zap.Duration("timeout", cfg.Timeout))
	res, err := client.Poll(ctx, orderID, cfg)
	if err != nil {
		lg.Error("Poll failed", zap.Error(err))
		return exitError
	}

	var pickup string
	if res.Last != nil {
		pickup = res.Last.PickupCode
	}
	switch res.Outcome {
	case orderclient.OutcomePaid:
		lg.Info("Payment received", zap.String("pickup_code", pickup))
		return exitPaid
	case orderclient.OutcomeFailed, orderclient.OutcomeCancelled:
		lg.Warn("Payment failed or was cancelled", zap.String("outcome", string(res.Outcome)))
		return exitNotPaid
	default:
		lg.Warn("Payment verification timed out, check your orders later")
		return exitInconclusive
	}
}
