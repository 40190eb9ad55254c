package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/promille/internal/config"
	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/scenario"
	"github.com/okian/promille/pkg/logger"
)

const defaultReplayTimeout = 2 * time.Minute

func main() {
	var (
		path    = flag.String("scenario", "", "YAML scenario file (required)")
		baseURL = flag.String("url", "", "Replay the scenario against the service at this URL and compare readings")
		timeout = flag.Duration("timeout", defaultReplayTimeout, "Overall replay timeout")
		verbose = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *path, *baseURL, os.Stdout); err != nil {
		logger.Get().Error(ctx, "curve failed", logger.Error(err))
		os.Exit(1)
	}
}

// run evaluates the scenario with the configured engine tuning and optionally
// replays it against a running service.
func run(ctx context.Context, path, baseURL string, out io.Writer) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	params, err := cfg.EngineParams()
	if err != nil {
		return err
	}
	engine := bac.NewEngine(bac.WithParams(params), bac.WithCadence(cfg.SampleCadence()))

	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	rep, err := scenario.Evaluate(engine, sc)
	if err != nil {
		return err
	}
	if err := rep.Write(out); err != nil {
		return err
	}
	if baseURL == "" {
		return nil
	}

	comps, err := scenario.NewReplayer(baseURL).Replay(ctx, sc, rep)
	fmt.Fprintln(out)
	for _, c := range comps {
		fmt.Fprintf(out, "%s\tlocal %.4f\tservice %.4f\n", c.PersonID, c.Local, c.Remote)
	}
	return err
}
