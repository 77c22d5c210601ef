package runner

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/drivefuzz/pkg/fuzz"
)

func Test_WriteReport_Persists_Artifact_When_Run_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	report := &fuzz.Report{
		Seed:       "broken-seed",
		Iterations: 100,
		RunLog: []fuzz.Result{
			{Kind: fuzz.KindWriteFile, Path: "a/b", Detail: "wrote 10 bytes"},
		},
	}

	path, writeErr := WriteReport(dir, report, errors.New("validation mismatch at \"a/b\""))
	require.NoError(t, writeErr)

	assert.Contains(t, filepath.Base(path), "drivefuzz-broken-seed-")

	payload, readErr := os.ReadFile(path)
	require.NoError(t, readErr)

	var decoded artifact

	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Contains(t, decoded.Failure, "validation mismatch")
	require.NotNil(t, decoded.Report)
	assert.Equal(t, "broken-seed", decoded.Report.Seed)
	require.Len(t, decoded.Report.RunLog, 1)
	assert.Equal(t, "a/b", decoded.Report.RunLog[0].Path)
}

func Test_WriteReport_Creates_Directory_When_Missing(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "artifacts")

	report := &fuzz.Report{Seed: "s"}

	path, writeErr := WriteReport(dir, report, errors.New("boom"))
	require.NoError(t, writeErr)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "artifact should exist under the created directory")
}

func Test_WriteReport_Writes_Distinct_Files_When_Called_Twice(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	report := &fuzz.Report{Seed: "s"}

	first, firstErr := WriteReport(dir, report, errors.New("boom"))
	require.NoError(t, firstErr)

	second, secondErr := WriteReport(dir, report, errors.New("boom"))
	require.NoError(t, secondErr)

	assert.NotEqual(t, first, second, "artifacts must never overwrite each other")
}
