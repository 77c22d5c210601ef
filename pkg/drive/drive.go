// Package drive defines the contract of a hierarchical, versioned,
// content-addressed file-storage engine and provides [Memory], an in-memory
// reference implementation of it.
//
// The main types are:
//   - [Drive]: interface for drive operations
//   - [Memory]: in-memory reference implementation
//   - [Link]: one endpoint of a live replication session
//
// Paths are slash-delimited and hierarchical. A path names either a file or
// a directory, never both. The engine is append-only underneath: every
// mutation lands as one log entry, and the Offset/ByteOffset counters
// exposed through [Drive.Counters] advance monotonically with the log.
//
// Example usage:
//
//	d := drive.NewMemory()
//	<-d.Ready()
//
//	if err := d.WriteFile("a/b/c", content); err != nil {
//	    return err
//	}
//
//	st, err := d.Stat("a/b/c")
package drive

import (
	"errors"
	"io"
)

// Drive errors.
var (
	// ErrNotFound is returned by Unlink, Stat, Open and the stream
	// constructors when no file (or, for Stat, directory) exists at the
	// path.
	ErrNotFound = errors.New("drive: path not found")

	// ErrExists is returned by Mkdir when the path already names a file or
	// directory.
	ErrExists = errors.New("drive: path already exists")

	// ErrBadDescriptor is returned by Read for a descriptor that was never
	// issued by Open.
	ErrBadDescriptor = errors.New("drive: bad file descriptor")

	// ErrClosed is returned by operations on a closed drive or a torn-down
	// replication link.
	ErrClosed = errors.New("drive: closed")

	// ErrKeyMismatch is returned by a replica when the announced root key
	// does not match the key the replica was created for.
	ErrKeyMismatch = errors.New("drive: replication key mismatch")

	// ErrReadOnly is returned by mutating operations on a replica. A
	// replica reconstructs state purely from the wire protocol.
	ErrReadOnly = errors.New("drive: drive is read-only")
)

// Stat describes a file or directory.
//
// For files, Size is the content length in bytes and the counters are zero.
// For directories, IsDir is set and Offset/ByteOffset report the drive's
// append-position counters as they stood when the directory entry was
// created. They never change afterward.
type Stat struct {
	Size       int
	IsDir      bool
	Offset     uint64
	ByteOffset uint64
}

// Counters are the drive's internal append-position counters.
//
// Offset counts log entries appended so far; ByteOffset counts content
// bytes appended so far. Both only ever grow.
type Counters struct {
	Offset     uint64
	ByteOffset uint64
}

// Drive is the storage-engine contract consumed by the fuzz engine.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// All operations either resolve or fail; none of them retry internally.
type Drive interface {
	// WriteFile replaces the full content at path. Last write wins.
	WriteFile(path string, data []byte) error

	// Unlink removes the file at path. Returns [ErrNotFound] if no file
	// exists there.
	Unlink(path string) error

	// Stat reports metadata for the file or directory at path. Returns
	// [ErrNotFound] if the path is absent.
	Stat(path string) (Stat, error)

	// Mkdir creates a directory entry at path, snapshotting the current
	// append counters into it.
	Mkdir(path string) error

	// Open returns a descriptor bound to the file's current content. The
	// bound content is immutable for the descriptor's lifetime even if the
	// file is later overwritten or unlinked.
	Open(path string) (int, error)

	// Read copies up to length bytes of the descriptor's bound content,
	// starting at position pos, into buf[bufOff:]. It returns the number
	// of bytes read; zero means the position is at or past the end.
	Read(fd int, buf []byte, bufOff, length, pos int) (int, error)

	// Close releases a descriptor. Closing an unknown descriptor is a
	// no-op.
	Close(fd int) error

	// CreateWriteStream returns a sink for the file's new content. The
	// content commits as one write when the sink is closed.
	CreateWriteStream(path string) (io.WriteCloser, error)

	// CreateReadStream returns a finite, single-pass, ordered byte stream
	// over the window [start, start+length), clipped to the content.
	CreateReadStream(path string, start, length int) (io.ReadCloser, error)

	// Counters returns the current append-position counters.
	Counters() Counters

	// Key returns the drive's public content-addressed root identifier.
	Key() string

	// Ready returns a channel that is closed once the drive has finished
	// bootstrapping. For a fresh instance this fires immediately; for a
	// replica it fires once initial synchronization has caught up with the
	// remote peer's announced state.
	Ready() <-chan struct{}

	// Replicate returns one endpoint of a duplex synchronization session.
	// A live session keeps streaming new entries indefinitely; a non-live
	// session stops at the log length current when the session began.
	Replicate(live bool) (*Link, error)
}
