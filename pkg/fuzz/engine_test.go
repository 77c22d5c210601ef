// Behavioral correctness: deterministic seeded fuzzing of the drive.
//
// Oracle: the engine's shadow state plus the final validation sweep.
// Technique: deterministic pseudo-random sequences (seeded PRNG).
//
// Each seed generates a deterministic operation sequence, making failures
// easy to reproduce without fuzzer corpus files. Runs on every CI build.
//
// Failures here mean: "the drive returned wrong results or wrong errors".

package fuzz_test

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/drivefuzz/pkg/drive"
	"github.com/calvinalkan/drivefuzz/pkg/fuzz"
)

// fullRunOps matches the reference scenario length. Shortened under -short
// so the suite stays quick during development.
func fullRunOps() int {
	if testing.Short() {
		return 2000
	}

	return 20000
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func Test_Engine_Run_Completes_Cleanly_When_Seeded_With_Hyperdrive(t *testing.T) {
	t.Parallel()

	primary := drive.NewMemory()

	engine := fuzz.NewEngine(fuzz.EngineConfig{
		Seed:  "hyperdrive",
		Drive: primary,
	})

	require.NoError(t, engine.Run(fullRunOps()), "no operation should observe a mismatch")
	require.NoError(t, fuzz.Validate(engine.State(), primary), "the final sweep should be clean")

	assert.Len(t, engine.RunLog(), fullRunOps(), "every operation logs exactly one entry")
}

func Test_Scenario_Completes_Cleanly_When_Replicated_With_Hyperdrive2(t *testing.T) {
	t.Parallel()

	report, runErr := fuzz.Run(fuzz.Scenario{
		Seed:       "hyperdrive2",
		Iterations: fullRunOps(),
		Replicated: true,
	}, quietLogger())

	require.NoError(t, runErr, "replicated validation should agree with the shadow state")
	require.NotNil(t, report)

	assert.True(t, report.Replicated)
	assert.Len(t, report.RunLog, fullRunOps())
}

func Test_Engine_Produces_Identical_RunLogs_When_Seed_Repeats(t *testing.T) {
	t.Parallel()

	runOnce := func() []fuzz.Result {
		primary := drive.NewMemory()
		engine := fuzz.NewEngine(fuzz.EngineConfig{Seed: "repeat-me", Drive: primary})

		require.NoError(t, engine.Run(1000))

		return engine.RunLog()
	}

	first := runOnce()
	second := runOnce()

	diff := cmp.Diff(first, second)
	assert.Empty(t, diff, "identical seeds must replay identically")
}

func Test_Engine_Produces_Different_RunLogs_When_Seeds_Differ(t *testing.T) {
	t.Parallel()

	runWith := func(seed string) []fuzz.Result {
		primary := drive.NewMemory()
		engine := fuzz.NewEngine(fuzz.EngineConfig{Seed: seed, Drive: primary})

		require.NoError(t, engine.Run(200))

		return engine.RunLog()
	}

	diff := cmp.Diff(runWith("hyperdrive"), runWith("hyperdrive2"))
	assert.NotEmpty(t, diff, "distinct seeds should explore distinct sequences")
}

func Test_Validate_Reports_Same_Result_When_Swept_Twice(t *testing.T) {
	t.Parallel()

	primary := drive.NewMemory()
	engine := fuzz.NewEngine(fuzz.EngineConfig{Seed: "double-sweep", Drive: primary})

	require.NoError(t, engine.Run(1000))

	// The sweep is read-only, so repeating it observes identical state.
	require.NoError(t, fuzz.Validate(engine.State(), primary))
	require.NoError(t, fuzz.Validate(engine.State(), primary))
}

func Test_Validate_Returns_Mismatch_When_Shadow_Disagrees_With_Drive(t *testing.T) {
	t.Parallel()

	primary := drive.NewMemory()
	require.NoError(t, primary.WriteFile("f", []byte("actual content")))

	shadow := fuzz.NewState()
	shadow.TrackFile("f", []byte("expected content"))

	sweepErr := fuzz.Validate(shadow, primary)
	require.Error(t, sweepErr)

	var mismatch *fuzz.MismatchError

	require.ErrorAs(t, sweepErr, &mismatch)
	assert.Equal(t, "f", mismatch.Path)
	assert.Equal(t, "content", mismatch.Field)
	assert.NotEmpty(t, mismatch.Diff, "content mismatches carry a diff")
}

func Test_Validate_Returns_Mismatch_When_Directory_Counters_Drift(t *testing.T) {
	t.Parallel()

	primary := drive.NewMemory()
	require.NoError(t, primary.WriteFile("f", []byte("abc")))
	require.NoError(t, primary.Mkdir("dir"))

	shadow := fuzz.NewState()
	shadow.TrackDir("dir", 99, 99)

	sweepErr := fuzz.Validate(shadow, primary)

	var mismatch *fuzz.MismatchError

	require.ErrorAs(t, sweepErr, &mismatch)
	assert.Equal(t, "dir", mismatch.Path)
}

func Test_Run_Builds_Report_When_Scenario_Completes(t *testing.T) {
	t.Parallel()

	report, runErr := fuzz.Run(fuzz.Scenario{
		Seed:       "hyperdrive",
		Iterations: 500,
	}, quietLogger())

	require.NoError(t, runErr)
	require.NotNil(t, report)

	assert.Equal(t, "hyperdrive", report.Seed)
	assert.Equal(t, 500, report.Iterations)
	assert.Len(t, report.RunLog, 500)
	assert.Positive(t, report.Files, "a 500-op run leaves files behind")
	assert.Positive(t, report.Counters.Offset, "mutations advance the log")
}

func Test_Execute_Returns_Same_Report_When_Run_Twice(t *testing.T) {
	t.Parallel()

	first, _, firstErr := fuzz.Execute(fuzz.Scenario{Seed: "stable", Iterations: 300}, quietLogger())
	require.NoError(t, firstErr)

	second, _, secondErr := fuzz.Execute(fuzz.Scenario{Seed: "stable", Iterations: 300}, quietLogger())
	require.NoError(t, secondErr)

	assert.Empty(t, cmp.Diff(first.RunLog, second.RunLog))
	assert.Equal(t, first.Counters, second.Counters)
	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, first.Directories, second.Directories)
}

func Test_MismatchError_Formats_Path_And_Values(t *testing.T) {
	t.Parallel()

	err := &fuzz.MismatchError{Path: "p", Field: "size", Expected: 5, Actual: 7}

	msg := err.Error()
	assert.Contains(t, msg, `"p"`)
	assert.Contains(t, msg, "size")
	assert.Contains(t, msg, "expected 5")
	assert.Contains(t, msg, "got 7")

	var target *fuzz.MismatchError

	require.True(t, errors.As(err, &target))
}
