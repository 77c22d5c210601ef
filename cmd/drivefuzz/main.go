// drivefuzz runs seeded, weighted-random fuzz scenarios against the
// in-memory reference drive.
//
// Usage:
//
//	drivefuzz [flags]
//
// Flags:
//
//	-s, --seed        Scenario seed string
//	-n, --ops         Number of weighted operations to run
//	-c, --config      JSONC config file (flags override it)
//	    --debug       Trace every operation
//	    --replica     Attach a replica and validate against it
//	    --artifacts   Directory for failure artifacts
//	    --shell       Drop into an inspection REPL after the run
//
// A failing run exits nonzero and, when --artifacts is set, leaves a JSON
// artifact with the full run log. Re-running with the same seed and op
// count reproduces the failure exactly.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/drivefuzz/internal/runner"
	"github.com/calvinalkan/drivefuzz/pkg/fuzz"
)

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("drivefuzz", flag.ContinueOnError)

	seed := flags.StringP("seed", "s", "", "scenario seed string")
	ops := flags.IntP("ops", "n", 0, "number of weighted operations")
	configPath := flags.StringP("config", "c", "", "JSONC config file")
	debug := flags.Bool("debug", false, "trace every operation")
	replica := flags.Bool("replica", false, "attach a replica and validate against it")
	artifacts := flags.String("artifacts", "", "directory for failure artifacts")
	shell := flags.Bool("shell", false, "drop into an inspection REPL after the run")

	parseErr := flags.Parse(args)
	if parseErr != nil {
		return parseErr
	}

	cfg, loadErr := runner.LoadConfig(*configPath)
	if loadErr != nil {
		return loadErr
	}

	// Flags override the config file.
	if flags.Changed("seed") {
		cfg.Seed = *seed
	}

	if flags.Changed("ops") {
		cfg.Iterations = *ops
	}

	if *debug {
		cfg.Debugging = true
	}

	if *replica {
		cfg.Replicated = true
	}

	if flags.Changed("artifacts") {
		cfg.ArtifactDir = *artifacts
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if cfg.Debugging {
		logger.SetLevel(logrus.DebugLevel)
	}

	fmt.Printf("seed=%s ops=%d replicated=%v\n", cfg.Seed, cfg.Iterations, cfg.Replicated)

	report, primary, runErr := fuzz.Execute(cfg.Scenario, logger)

	if report != nil {
		fmt.Printf("files=%d dirs=%d descriptors=%d offset=%d byteOffset=%d\n",
			report.Files, report.Directories, report.Descriptors,
			report.Counters.Offset, report.Counters.ByteOffset)
	}

	if runErr != nil && report != nil && cfg.ArtifactDir != "" {
		artifactPath, writeErr := runner.WriteReport(cfg.ArtifactDir, report, runErr)
		if writeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not write artifact: %v\n", writeErr)
		} else {
			fmt.Fprintf(os.Stderr, "failure artifact: %s\n", artifactPath)
		}
	}

	if runErr == nil {
		fmt.Println("validation: ok")
	}

	if *shell && primary != nil {
		shellErr := runShell(primary, report)
		if shellErr != nil && runErr == nil {
			return shellErr
		}
	}

	return runErr
}
