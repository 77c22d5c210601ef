package runner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/drivefuzz/pkg/fuzz"
)

// lockTimeout bounds how long a writer waits for the artifact directory.
const lockTimeout = 5 * time.Second

// Artifact errors.
var (
	errLockTimeout  = errors.New("artifact lock timeout")
	errLockFileOpen = errors.New("failed to open artifact lock file")
)

// artifact is the on-disk failure record: the scenario report plus the
// error that ended the run. Re-running the same seed and iteration count
// reproduces the failure bit for bit, so this is all a diagnosis needs.
type artifact struct {
	Failure string       `json:"failure"`
	Report  *fuzz.Report `json:"report"`
}

// WriteReport persists a failed run's report under dir, returning the
// artifact path. The directory is guarded by a lock file so concurrent
// fuzz processes don't interleave writes, and the artifact itself is
// written atomically.
func WriteReport(dir string, report *fuzz.Report, runErr error) (string, error) {
	mkdirErr := os.MkdirAll(dir, 0o755)
	if mkdirErr != nil {
		return "", fmt.Errorf("creating artifact dir: %w", mkdirErr)
	}

	lock, lockErr := acquireLock(filepath.Join(dir, ".lock"))
	if lockErr != nil {
		return "", lockErr
	}

	defer lock.release()

	payload, marshalErr := json.MarshalIndent(artifact{
		Failure: runErr.Error(),
		Report:  report,
	}, "", "  ")
	if marshalErr != nil {
		return "", fmt.Errorf("encoding artifact: %w", marshalErr)
	}

	name := fmt.Sprintf("drivefuzz-%s-%d.json", report.Seed, time.Now().UnixNano())
	path := filepath.Join(dir, name)

	writeErr := atomic.WriteFile(path, bytes.NewReader(payload))
	if writeErr != nil {
		return "", fmt.Errorf("writing artifact: %w", writeErr)
	}

	return path, nil
}

// dirLock is an exclusive flock on the artifact directory's lock file.
type dirLock struct {
	file *os.File
}

// acquireLock takes the lock, retrying until lockTimeout.
func acquireLock(lockPath string) (*dirLock, error) {
	file, openErr := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // path is from caller
	if openErr != nil {
		return nil, fmt.Errorf("%w: %w", errLockFileOpen, openErr)
	}

	deadline := time.Now().Add(lockTimeout)

	const retryInterval = 10 * time.Millisecond

	for {
		flockErr := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if flockErr == nil {
			return &dirLock{file: file}, nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s", errLockTimeout, lockPath)
		}

		time.Sleep(retryInterval)
	}
}

// release drops the lock.
func (l *dirLock) release() {
	if l.file != nil {
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
	}
}
