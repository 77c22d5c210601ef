package fuzz

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/drivefuzz/pkg/drive"
)

// EngineConfig configures one fuzz engine instance.
type EngineConfig struct {
	// Seed derives the entire operation sequence. Same seed, same run.
	Seed string

	// Drive receives every mutating operation.
	Drive drive.Drive

	// Validation receives every validating read. Nil means read back from
	// Drive directly; a replication [Harness] supplies a replica-backed
	// target instead.
	Validation Target

	// Logger traces each operation at debug level. Nil disables tracing.
	Logger *logrus.Logger
}

// Engine is the fuzz run loop: it draws operations by weight, executes
// them against the drive, mirrors expected outcomes into the shadow state,
// and appends every step to an ordered run log.
//
// The loop is strictly sequential: one operation is in flight at a time,
// and the shadow state is only updated after the drive interaction has
// fully resolved. The sole exception is the combined write+mkdir
// operation, which overlaps its two sub-operations but joins both before
// committing either record.
type Engine struct {
	rand   *Rand
	drive  drive.Drive
	target Target
	state  *State
	logger logrus.FieldLogger
	runLog []Result
}

// NewEngine builds an engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	target := cfg.Validation
	if target == nil {
		target = cfg.Drive
	}

	var logger logrus.FieldLogger
	if cfg.Logger != nil {
		logger = cfg.Logger.WithField("seed", cfg.Seed)
	}

	return &Engine{
		rand:   NewRand(cfg.Seed),
		drive:  cfg.Drive,
		target: target,
		state:  NewState(),
		logger: logger,
	}
}

// State exposes the shadow model, e.g. for a final validation sweep.
func (e *Engine) State() *State { return e.state }

// RunLog returns the ordered log of executed operations.
func (e *Engine) RunLog() []Result { return e.runLog }

// Run executes exactly n weighted operations. The first failure that is
// not explicitly expected aborts the run; the accumulated run log stays
// available for diagnosis.
func (e *Engine) Run(n int) error {
	for i := 0; i < n; i++ {
		draw, _ := e.rand.Int(totalWeight - 1)
		kind := pickKind(draw)

		applyErr := e.apply(kind)
		if applyErr != nil {
			return fmt.Errorf("operation %d (%s): %w", i, kind, applyErr)
		}
	}

	return nil
}

func (e *Engine) apply(kind Kind) error {
	switch kind {
	case KindWriteFile:
		return e.writeFile()
	case KindDeleteFile:
		return e.deleteFile()
	case KindOverwriteFile:
		return e.overwriteFile()
	case KindStatefulRead:
		return e.statefulRead()
	case KindStatFile:
		return e.statFile()
	case KindStatDirectory:
		return e.statDirectory()
	case KindDeleteNonexistent:
		return e.deleteNonexistent()
	case KindReadStream:
		return e.readStream()
	case KindStatelessRead:
		return e.statelessRead()
	case KindOpenFile:
		return e.openFile()
	case KindWriteAndMkdir:
		return e.writeAndMkdir()
	default:
		return fmt.Errorf("unknown operation kind %d", kind)
	}
}

// record appends one run-log entry and traces it when debugging.
func (e *Engine) record(kind Kind, path, detail string) {
	e.recordResult(Result{Kind: kind, Path: path, Detail: detail})
}

func (e *Engine) recordResult(res Result) {
	e.runLog = append(e.runLog, res)

	if e.logger != nil {
		fields := logrus.Fields{"op": res.Kind.String(), "path": res.Path}
		if res.Dir != "" {
			fields["dir"] = res.Dir
		}

		e.logger.WithFields(fields).Debug(res.Detail)
	}
}

// -----------------------------------------------------------------------------
// Operation handlers. Each one fully resolves its drive interaction, runs
// its inline checks, and only then mutates the shadow state.
// -----------------------------------------------------------------------------

func (e *Engine) writeFile() error {
	path := generatePath(e.rand, e.state, nil)
	content := generateContent(e.rand)

	writeErr := e.drive.WriteFile(path, content)
	if writeErr != nil {
		return writeErr
	}

	sizeErr := e.checkSize(path, len(content))
	if sizeErr != nil {
		return sizeErr
	}

	e.state.TrackFile(path, content)
	e.record(KindWriteFile, path, fmt.Sprintf("wrote %d bytes", len(content)))

	return nil
}

func (e *Engine) deleteFile() error {
	rec, ok := e.state.PickFile(e.rand)
	if !ok {
		e.record(KindDeleteFile, "", "no tracked files")

		return nil
	}

	unlinkErr := e.drive.Unlink(rec.Path)
	if unlinkErr != nil {
		return unlinkErr
	}

	e.state.ForgetFile(rec.Path)
	e.record(KindDeleteFile, rec.Path, "deleted")

	return nil
}

func (e *Engine) overwriteFile() error {
	rec, ok := e.state.PickFile(e.rand)
	if !ok {
		e.record(KindOverwriteFile, "", "no tracked files")

		return nil
	}

	content := generateContent(e.rand)

	writeErr := e.drive.WriteFile(rec.Path, content)
	if writeErr != nil {
		return writeErr
	}

	sizeErr := e.checkSize(rec.Path, len(content))
	if sizeErr != nil {
		return sizeErr
	}

	e.state.TrackFile(rec.Path, content)
	e.record(KindOverwriteFile, rec.Path, fmt.Sprintf("overwrote with %d bytes", len(content)))

	return nil
}

// statefulRead advances one tracked descriptor through its state machine:
// the first read starts at the cursor chosen at open time, later reads
// continue where the previous one stopped. A zero-byte result for a
// nonzero request is the canonical end-of-stream signal and retires the
// descriptor.
func (e *Engine) statefulRead() error {
	desc, ok := e.state.PickDescriptor(e.rand)
	if !ok {
		e.record(KindStatefulRead, "", "no open descriptors")

		return nil
	}

	length, ok := e.rand.Int(len(desc.Content)/5 - 1)
	if !ok {
		// Content shorter than five bytes has an empty request domain.
		e.record(KindStatefulRead, desc.Path, "empty length domain")

		return nil
	}

	buf := make([]byte, length)

	n, readErr := e.target.Read(desc.FD, buf, 0, length, desc.Pos)
	if readErr != nil {
		return readErr
	}

	if n == 0 && length > 0 {
		// Zero bytes for a nonzero request is legal only at or past the
		// end of the bound content; anywhere earlier it is a lie.
		if desc.Pos < len(desc.Content) {
			return &MismatchError{
				Path:     desc.Path,
				Field:    "end of stream",
				Expected: fmt.Sprintf("cursor at or past %d", len(desc.Content)),
				Actual:   fmt.Sprintf("cursor %d", desc.Pos),
			}
		}

		// End of stream: the descriptor leaves the table for good.
		if closeErr := e.target.Close(desc.FD); closeErr != nil {
			return closeErr
		}

		e.state.ForgetDescriptor(desc.FD)
		e.record(KindStatefulRead, desc.Path, fmt.Sprintf("end of stream at %d, descriptor closed", desc.Pos))

		return nil
	}

	if desc.Pos+n > len(desc.Content) {
		return &MismatchError{
			Path:     desc.Path,
			Field:    "descriptor read length",
			Expected: fmt.Sprintf("at most %d bytes", len(desc.Content)-desc.Pos),
			Actual:   fmt.Sprintf("%d bytes", n),
		}
	}

	expected := desc.Content[desc.Pos : desc.Pos+n]
	if !bytes.Equal(buf[:n], expected) {
		return &MismatchError{
			Path:     desc.Path,
			Field:    fmt.Sprintf("descriptor read [%d, %d)", desc.Pos, desc.Pos+n),
			Expected: expected,
			Actual:   buf[:n],
		}
	}

	desc.Pos += n
	desc.Started = true
	e.record(KindStatefulRead, desc.Path, fmt.Sprintf("read %d bytes, cursor now %d", n, desc.Pos))

	return nil
}

func (e *Engine) statFile() error {
	rec, ok := e.state.PickFile(e.rand)
	if !ok {
		e.record(KindStatFile, "", "no tracked files")

		return nil
	}

	sizeErr := e.checkSize(rec.Path, len(rec.Content))
	if sizeErr != nil {
		return sizeErr
	}

	e.record(KindStatFile, rec.Path, "stat matched")

	return nil
}

func (e *Engine) statDirectory() error {
	rec, ok := e.state.PickDir(e.rand)
	if !ok {
		e.record(KindStatDirectory, "", "no tracked directories")

		return nil
	}

	dirErr := e.checkDir(rec.Path, rec.Offset, rec.ByteOffset)
	if dirErr != nil {
		return dirErr
	}

	e.record(KindStatDirectory, rec.Path, "stat matched")

	return nil
}

// deleteNonexistent targets a freshly generated, guaranteed-absent path.
// The drive's not-found failure is the expected outcome here and is the
// only place the engine recovers one.
func (e *Engine) deleteNonexistent() error {
	path := generatePath(e.rand, e.state, nil)

	unlinkErr := e.drive.Unlink(path)
	if unlinkErr == nil {
		return &MismatchError{
			Path:     path,
			Field:    "unlink of absent path",
			Expected: "not-found failure",
			Actual:   "success",
		}
	}

	if !errors.Is(unlinkErr, drive.ErrNotFound) {
		return unlinkErr
	}

	e.record(KindDeleteNonexistent, path, "not-found suppressed")

	return nil
}

func (e *Engine) readStream() error {
	rec, ok := e.state.PickFile(e.rand)
	if !ok {
		e.record(KindReadStream, "", "no tracked files")

		return nil
	}

	start, length := pickWindow(e.rand, len(rec.Content))

	stream, streamErr := e.target.CreateReadStream(rec.Path, start, length)
	if streamErr != nil {
		return streamErr
	}

	got, readErr := io.ReadAll(stream)
	_ = stream.Close()

	if readErr != nil {
		return readErr
	}

	expected := rec.Content[start : start+length]
	if !bytes.Equal(got, expected) {
		return &MismatchError{
			Path:     rec.Path,
			Field:    fmt.Sprintf("stream window [%d, %d)", start, start+length),
			Expected: expected,
			Actual:   got,
		}
	}

	e.record(KindReadStream, rec.Path, fmt.Sprintf("streamed [%d, %d)", start, start+length))

	return nil
}

// statelessRead opens a throwaway descriptor, reads exactly one window,
// and closes it. It never touches the persistent descriptor table.
func (e *Engine) statelessRead() error {
	rec, ok := e.state.PickFile(e.rand)
	if !ok {
		e.record(KindStatelessRead, "", "no tracked files")

		return nil
	}

	start, length := pickWindow(e.rand, len(rec.Content))

	fd, openErr := e.target.Open(rec.Path)
	if openErr != nil {
		return openErr
	}

	buf := make([]byte, length)
	n, readErr := e.target.Read(fd, buf, 0, length, start)

	closeErr := e.target.Close(fd)

	if readErr != nil {
		return readErr
	}

	if closeErr != nil {
		return closeErr
	}

	if n != length || !bytes.Equal(buf[:n], rec.Content[start:start+length]) {
		return &MismatchError{
			Path:     rec.Path,
			Field:    fmt.Sprintf("stateless read [%d, %d)", start, start+length),
			Expected: rec.Content[start : start+length],
			Actual:   buf[:n],
		}
	}

	e.record(KindStatelessRead, rec.Path, fmt.Sprintf("read [%d, %d)", start, start+length))

	return nil
}

// openFile opens a persistent descriptor against a tracked file, with the
// cursor placed at a random offset inside the first fifth of the content.
func (e *Engine) openFile() error {
	rec, ok := e.state.PickFile(e.rand)
	if !ok {
		e.record(KindOpenFile, "", "no tracked files")

		return nil
	}

	fd, openErr := e.target.Open(rec.Path)
	if openErr != nil {
		return openErr
	}

	pos, _ := e.rand.Int(len(rec.Content) / 5)

	snapshot := make([]byte, len(rec.Content))
	copy(snapshot, rec.Content)

	e.state.TrackDescriptor(&Descriptor{FD: fd, Path: rec.Path, Content: snapshot, Pos: pos})
	e.record(KindOpenFile, rec.Path, fmt.Sprintf("descriptor %d, cursor %d", fd, pos))

	return nil
}

// writeAndMkdir claims two fresh paths, snapshots the drive's append
// counters, creates the directory, and overlaps the file write with the
// directory's inline verification. Both sub-operations must succeed before
// either record enters the shadow state, and the directory must report
// exactly the pre-mutation counters.
func (e *Engine) writeAndMkdir() error {
	filePath := generatePath(e.rand, e.state, nil)
	dirPath := generatePath(e.rand, e.state, map[string]bool{filePath: true})
	content := generateContent(e.rand)

	snap := e.drive.Counters()

	mkdirErr := e.drive.Mkdir(dirPath)
	if mkdirErr != nil {
		return mkdirErr
	}

	var group errgroup.Group

	group.Go(func() error {
		sink, createErr := e.drive.CreateWriteStream(filePath)
		if createErr != nil {
			return createErr
		}

		if _, writeErr := sink.Write(content); writeErr != nil {
			return writeErr
		}

		return sink.Close()
	})

	dirErr := e.checkDir(dirPath, snap.Offset, snap.ByteOffset)

	writeErr := group.Wait()
	if writeErr != nil {
		return writeErr
	}

	if dirErr != nil {
		return dirErr
	}

	sizeErr := e.checkSize(filePath, len(content))
	if sizeErr != nil {
		return sizeErr
	}

	e.state.TrackFile(filePath, content)
	e.state.TrackDir(dirPath, snap.Offset, snap.ByteOffset)
	e.recordResult(Result{
		Kind:   KindWriteAndMkdir,
		Path:   filePath,
		Dir:    dirPath,
		Detail: fmt.Sprintf("wrote %d bytes", len(content)),
	})

	return nil
}

// -----------------------------------------------------------------------------
// Inline checks.
// -----------------------------------------------------------------------------

// checkSize asserts that the validation target reports a file of exactly
// the expected size.
func (e *Engine) checkSize(path string, size int) error {
	st, statErr := e.target.Stat(path)
	if statErr != nil {
		return statErr
	}

	if st.IsDir {
		return &MismatchError{Path: path, Field: "type", Expected: "file", Actual: "directory"}
	}

	if st.Size != size {
		return &MismatchError{Path: path, Field: "size", Expected: size, Actual: st.Size}
	}

	return nil
}

// checkDir asserts directory-typed metadata with exactly the recorded
// append counters.
func (e *Engine) checkDir(path string, offset, byteOffset uint64) error {
	st, statErr := e.target.Stat(path)
	if statErr != nil {
		return statErr
	}

	if !st.IsDir {
		return &MismatchError{Path: path, Field: "type", Expected: "directory", Actual: "file"}
	}

	if st.Offset != offset {
		return &MismatchError{Path: path, Field: "offset", Expected: offset, Actual: st.Offset}
	}

	if st.ByteOffset != byteOffset {
		return &MismatchError{Path: path, Field: "byteOffset", Expected: byteOffset, Actual: st.ByteOffset}
	}

	return nil
}
