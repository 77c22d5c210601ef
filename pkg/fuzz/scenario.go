package fuzz

import (
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/drivefuzz/pkg/drive"
)

// Scenario parameterizes one fuzz run.
type Scenario struct {
	// Seed is the string seed the whole run derives from.
	Seed string `json:"seed"`

	// Iterations is the exact number of weighted operations to execute.
	Iterations int `json:"iterations"`

	// Debugging enables per-operation trace logging.
	Debugging bool `json:"debugging"`

	// Replicated attaches a replica peer and validates against it instead
	// of the primary.
	Replicated bool `json:"replicated"`
}

// Report summarizes a completed (or aborted) run. The run log is carried
// along so a failure can be diagnosed without re-running.
type Report struct {
	Seed        string         `json:"seed"`
	Iterations  int            `json:"iterations"`
	Replicated  bool           `json:"replicated"`
	Files       int            `json:"files"`
	Directories int            `json:"directories"`
	Descriptors int            `json:"descriptors"`
	Counters    drive.Counters `json:"counters"`
	RunLog      []Result       `json:"run_log"`
}

// Run executes one scenario against a fresh in-memory drive: run the
// weighted operations, then perform the mandatory final validation sweep.
// The report is returned even when the run fails.
func Run(sc Scenario, logger *logrus.Logger) (*Report, error) {
	report, _, runErr := Execute(sc, logger)

	return report, runErr
}

// Execute is [Run], but also hands back the primary drive so a caller can
// inspect its state after the run (e.g. the CLI's interactive shell).
func Execute(sc Scenario, logger *logrus.Logger) (*Report, *drive.Memory, error) {
	primary := drive.NewMemory()
	<-primary.Ready()

	var target Target

	if sc.Replicated {
		harness, harnessErr := NewHarness(primary)
		if harnessErr != nil {
			return nil, nil, harnessErr
		}

		defer func() { _ = harness.Close() }()

		if readyErr := harness.AwaitReady(); readyErr != nil {
			return nil, nil, readyErr
		}

		target = harness.Target()
	}

	var engineLogger *logrus.Logger
	if sc.Debugging {
		engineLogger = logger
	}

	engine := NewEngine(EngineConfig{
		Seed:       sc.Seed,
		Drive:      primary,
		Validation: target,
		Logger:     engineLogger,
	})

	runErr := engine.Run(sc.Iterations)

	var sweepErr error
	if runErr == nil {
		sweepErr = Validate(engine.State(), engine.target)
	}

	report := &Report{
		Seed:        sc.Seed,
		Iterations:  sc.Iterations,
		Replicated:  sc.Replicated,
		Files:       engine.State().FileCount(),
		Directories: engine.State().DirCount(),
		Descriptors: engine.State().DescriptorCount(),
		Counters:    primary.Counters(),
		RunLog:      engine.RunLog(),
	}

	if runErr != nil {
		return report, primary, runErr
	}

	return report, primary, sweepErr
}
