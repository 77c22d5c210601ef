package fuzz

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/drivefuzz/pkg/drive"
)

// Target is the read surface the oracle validates against: either the
// drive itself, or a replica peer behind a replication [Harness].
//
// [drive.Drive] satisfies Target.
type Target interface {
	Stat(path string) (drive.Stat, error)
	Open(path string) (int, error)
	Read(fd int, buf []byte, bufOff, length, pos int) (int, error)
	Close(fd int) error
	CreateReadStream(path string, start, length int) (io.ReadCloser, error)
}

// MismatchError reports a disagreement between the shadow state and the
// state the validation target observes. It is always fatal; determinism
// from the seed is the debugging mechanism, not retries.
type MismatchError struct {
	Path     string
	Field    string
	Expected any
	Actual   any
	Diff     string
}

// Error names the path and the expected vs. actual values.
func (e *MismatchError) Error() string {
	msg := fmt.Sprintf("validation mismatch at %q: %s: expected %v, got %v", e.Path, e.Field, e.Expected, e.Actual)
	if e.Diff != "" {
		msg += "\n" + e.Diff
	}

	return msg
}

// Validate sweeps the full shadow state against the target.
//
// Every tracked file is read in its entirety through the target's read
// stream and compared byte-exactly against the shadow content; every
// tracked directory must report directory-typed metadata with exactly the
// append counters recorded at its creation. The sweep is read-only, so
// two consecutive sweeps with no interleaved operations are identical.
//
// The first mismatch aborts the sweep.
func Validate(s *State, target Target) error {
	for _, path := range s.fileOrder {
		rec := s.files[path]

		stream, streamErr := target.CreateReadStream(path, 0, len(rec.Content))
		if streamErr != nil {
			return fmt.Errorf("sweep: %s: %w", path, streamErr)
		}

		got, readErr := io.ReadAll(stream)
		_ = stream.Close()

		if readErr != nil {
			return fmt.Errorf("sweep: %s: %w", path, readErr)
		}

		if !bytes.Equal(got, rec.Content) {
			return &MismatchError{
				Path:     path,
				Field:    "content",
				Expected: fmt.Sprintf("%d bytes", len(rec.Content)),
				Actual:   fmt.Sprintf("%d bytes", len(got)),
				Diff:     cmp.Diff(rec.Content, got),
			}
		}
	}

	for _, path := range s.dirOrder {
		rec := s.dirs[path]

		st, statErr := target.Stat(path)
		if statErr != nil {
			return fmt.Errorf("sweep: %s: %w", path, statErr)
		}

		if !st.IsDir {
			return &MismatchError{Path: path, Field: "type", Expected: "directory", Actual: "file"}
		}

		if st.Offset != rec.Offset || st.ByteOffset != rec.ByteOffset {
			return &MismatchError{
				Path:     path,
				Field:    "recorded counters",
				Expected: fmt.Sprintf("offset=%d byteOffset=%d", rec.Offset, rec.ByteOffset),
				Actual:   fmt.Sprintf("offset=%d byteOffset=%d", st.Offset, st.ByteOffset),
			}
		}
	}

	return nil
}
