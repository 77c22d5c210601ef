package drive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Entry kinds in the append-only log.
const (
	entryPut uint8 = iota
	entryUnlink
	entryMkdir
)

// logEntry is one committed mutation. Seq is the entry's index in the log.
//
// Put entries reference their content blob by hash. Mkdir entries carry the
// append counters recorded when the directory was created; they travel with
// the entry so a replica reports identical directory metadata without
// recomputing anything.
type logEntry struct {
	Seq        uint64
	Kind       uint8
	Path       string
	BlobHash   string
	BlobSize   int
	RecOffset  uint64
	RecByteOff uint64
}

// Memory is an in-memory reference implementation of [Drive].
//
// Every mutation appends one entry to an ordered log. Content blobs live in
// a content-addressed table keyed by their sha256, so a descriptor opened
// against a file keeps reading the same bytes no matter what happens to the
// path afterward.
//
// A Memory is either a writable primary (see [NewMemory]) or a read-only
// replica (see [NewReplica]) that reconstructs its state purely from
// replication frames.
type Memory struct {
	mu   sync.Mutex
	cond *sync.Cond

	key      string
	readOnly bool

	log        []logEntry
	byteOffset uint64
	blobs      map[string][]byte
	files      map[string]int // path -> log index of latest put
	dirs       map[string]int // path -> log index of mkdir entry

	fds    map[int][]byte // descriptor -> bound content snapshot
	nextFD int

	ready     chan struct{}
	readyOnce sync.Once

	// Replica bootstrap: set by the first announce frame.
	announced  bool
	initialLen uint64
}

// NewMemory creates a fresh writable drive. Its readiness signal fires
// immediately; there is nothing to bootstrap.
func NewMemory() *Memory {
	nonce := make([]byte, 32)
	_, _ = rand.Read(nonce)

	sum := sha256.Sum256(nonce)

	memoryDrive := &Memory{
		key:    hex.EncodeToString(sum[:]),
		blobs:  make(map[string][]byte),
		files:  make(map[string]int),
		dirs:   make(map[string]int),
		fds:    make(map[int][]byte),
		nextFD: 1,
		ready:  make(chan struct{}),
	}
	memoryDrive.cond = sync.NewCond(&memoryDrive.mu)
	memoryDrive.readyOnce.Do(func() { close(memoryDrive.ready) })

	return memoryDrive
}

// NewReplica creates an empty read-only peer identified solely by the
// primary's public root key. It becomes ready once a replication session
// has caught it up to the remote peer's announced log length.
func NewReplica(key string) *Memory {
	replicaDrive := &Memory{
		key:      key,
		readOnly: true,
		blobs:    make(map[string][]byte),
		files:    make(map[string]int),
		dirs:     make(map[string]int),
		fds:      make(map[int][]byte),
		nextFD:   1,
		ready:    make(chan struct{}),
	}
	replicaDrive.cond = sync.NewCond(&replicaDrive.mu)

	return replicaDrive
}

// Key returns the drive's public content-addressed root identifier.
func (d *Memory) Key() string { return d.key }

// Ready implements [Drive].
func (d *Memory) Ready() <-chan struct{} { return d.ready }

// Counters implements [Drive].
func (d *Memory) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.countersLocked()
}

func (d *Memory) countersLocked() Counters {
	return Counters{Offset: uint64(len(d.log)), ByteOffset: d.byteOffset}
}

// WriteFile implements [Drive]. The full content at path is replaced; the
// previous version stays reachable through descriptors opened before the
// write.
func (d *Memory) WriteFile(path string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readOnly {
		return ErrReadOnly
	}

	if _, isDir := d.dirs[path]; isDir {
		return fmt.Errorf("%w: %s is a directory", ErrExists, path)
	}

	blob := make([]byte, len(data))
	copy(blob, data)

	d.appendLocked(logEntry{
		Kind:     entryPut,
		Path:     path,
		BlobHash: storeBlob(d.blobs, blob),
		BlobSize: len(blob),
	})

	return nil
}

// Unlink implements [Drive].
func (d *Memory) Unlink(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readOnly {
		return ErrReadOnly
	}

	if _, exists := d.files[path]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	d.appendLocked(logEntry{Kind: entryUnlink, Path: path})

	return nil
}

// Mkdir implements [Drive]. The directory entry snapshots the append
// counters as they stand at this moment; Stat reports that snapshot for the
// directory's whole lifetime.
func (d *Memory) Mkdir(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readOnly {
		return ErrReadOnly
	}

	if _, exists := d.files[path]; exists {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}

	if _, exists := d.dirs[path]; exists {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}

	current := d.countersLocked()

	d.appendLocked(logEntry{
		Kind:       entryMkdir,
		Path:       path,
		RecOffset:  current.Offset,
		RecByteOff: current.ByteOffset,
	})

	return nil
}

// Stat implements [Drive].
func (d *Memory) Stat(path string) (Stat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if idx, exists := d.files[path]; exists {
		return Stat{Size: d.log[idx].BlobSize}, nil
	}

	if idx, exists := d.dirs[path]; exists {
		entry := d.log[idx]

		return Stat{IsDir: true, Offset: entry.RecOffset, ByteOffset: entry.RecByteOff}, nil
	}

	return Stat{}, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Open implements [Drive]. The returned descriptor is bound to the file's
// current content blob, which is immutable.
func (d *Memory) Open(path string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, exists := d.files[path]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	fd := d.nextFD
	d.nextFD++
	d.fds[fd] = d.blobs[d.log[idx].BlobHash]

	return fd, nil
}

// Read implements [Drive].
func (d *Memory) Read(fd int, buf []byte, bufOff, length, pos int) (int, error) {
	d.mu.Lock()
	content, exists := d.fds[fd]
	d.mu.Unlock()

	if !exists {
		return 0, fmt.Errorf("%w: %d", ErrBadDescriptor, fd)
	}

	if pos < 0 || pos >= len(content) {
		return 0, nil
	}

	n := length
	if available := len(content) - pos; n > available {
		n = available
	}

	if space := len(buf) - bufOff; n > space {
		n = space
	}

	if n <= 0 {
		return 0, nil
	}

	copy(buf[bufOff:bufOff+n], content[pos:pos+n])

	return n, nil
}

// Close implements [Drive]. Closing a descriptor twice, or closing one that
// was never issued, is a no-op.
func (d *Memory) Close(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.fds, fd)

	return nil
}

// WaitApplied blocks until the drive's log holds at least seq entries.
//
// On a primary this returns immediately. On a replica it is the
// block-until-available read gate: content announced by the remote peer is
// served only once the corresponding entries have arrived and been applied.
func (d *Memory) WaitApplied(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for uint64(len(d.log)) < seq {
		d.cond.Wait()
	}
}

// appendLocked commits one entry: assigns its sequence number, advances the
// counters, and updates the path index. Callers hold d.mu.
func (d *Memory) appendLocked(entry logEntry) {
	entry.Seq = uint64(len(d.log))
	d.log = append(d.log, entry)

	switch entry.Kind {
	case entryPut:
		d.files[entry.Path] = int(entry.Seq)
		d.byteOffset += uint64(entry.BlobSize)
	case entryUnlink:
		delete(d.files, entry.Path)
	case entryMkdir:
		d.dirs[entry.Path] = int(entry.Seq)
	}

	d.cond.Broadcast()
}

// applyRemote applies one entry received over a replication link. Entries
// arrive in log order; duplicates (from overlapping sessions) are ignored.
func (d *Memory) applyRemote(entry logEntry, blob []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry.Seq < uint64(len(d.log)) {
		return nil
	}

	if entry.Seq > uint64(len(d.log)) {
		return fmt.Errorf("drive: out-of-order replication entry %d, have %d", entry.Seq, len(d.log))
	}

	if entry.Kind == entryPut {
		stored := make([]byte, len(blob))
		copy(stored, blob)

		hash := storeBlob(d.blobs, stored)
		if hash != entry.BlobHash {
			return fmt.Errorf("drive: content hash mismatch for %s at seq %d", entry.Path, entry.Seq)
		}
	}

	d.appendLocked(entry)
	d.maybeReadyLocked()

	return nil
}

// handleAnnounce records the remote peer's identity and log length.
//
// Only a replica enforces the announced key: it alone knows which drive it
// asked to be synced from. A primary receiving a mismatched announce must
// not fail its own link, or the peer's link would end before the peer ever
// learns about the mismatch.
func (d *Memory) handleAnnounce(key string, length uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.readOnly {
		return nil
	}

	if key != d.key {
		return fmt.Errorf("%w: want %s, got %s", ErrKeyMismatch, d.key, key)
	}

	if !d.announced {
		d.announced = true
		d.initialLen = length
	}

	d.maybeReadyLocked()

	return nil
}

// maybeReadyLocked fires the readiness signal once initial sync is done.
func (d *Memory) maybeReadyLocked() {
	if !d.readOnly || !d.announced {
		return
	}

	if uint64(len(d.log)) >= d.initialLen {
		d.readyOnce.Do(func() { close(d.ready) })
	}
}

// storeBlob inserts content into the blob table and returns its address.
func storeBlob(blobs map[string][]byte, blob []byte) string {
	sum := sha256.Sum256(blob)
	hash := hex.EncodeToString(sum[:])

	if _, exists := blobs[hash]; !exists {
		blobs[hash] = blob
	}

	return hash
}
