package fuzz

import (
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/drivefuzz/pkg/drive"
)

// Harness wires a primary drive and a freshly bootstrapped replica
// together over a live duplex replication session and redirects validation
// reads to the replica.
//
// The replica is created from the primary's public root key only — no
// local state is copied. The harness owns two explicit directional pumps,
// one per direction, each moving frames from one peer's outbound channel
// to the other peer's inbound channel; neither link pipes into itself, so
// teardown order stays explicit: close both links, then join the pumps.
type Harness struct {
	primary drive.Drive
	replica *drive.Memory

	primaryLink *drive.Link
	replicaLink *drive.Link
	pumps       *errgroup.Group
}

// NewHarness bootstraps a replica for primary and starts the live session.
func NewHarness(primary drive.Drive) (*Harness, error) {
	replica := drive.NewReplica(primary.Key())

	primaryLink, primaryErr := primary.Replicate(true)
	if primaryErr != nil {
		return nil, fmt.Errorf("replicating primary: %w", primaryErr)
	}

	replicaLink, replicaErr := replica.Replicate(true)
	if replicaErr != nil {
		_ = primaryLink.Close()

		return nil, fmt.Errorf("replicating replica: %w", replicaErr)
	}

	pumps := &errgroup.Group{}
	pumps.Go(pump(primaryLink, replicaLink))
	pumps.Go(pump(replicaLink, primaryLink))

	return &Harness{
		primary:     primary,
		replica:     replica,
		primaryLink: primaryLink,
		replicaLink: replicaLink,
		pumps:       pumps,
	}, nil
}

// pump moves frames from src's outbound channel into dst's inbound channel
// until either side of the session ends.
func pump(src, dst *drive.Link) func() error {
	return func() error {
		for {
			select {
			case <-src.Done():
				return nil

			case <-dst.Done():
				return nil

			case frame := <-src.Out():
				select {
				case dst.In() <- frame:
				case <-src.Done():
					return nil
				case <-dst.Done():
					return nil
				}
			}
		}
	}
}

// AwaitReady blocks until the replica signals content readiness, or until
// the session dies first (e.g. on a key mismatch).
func (h *Harness) AwaitReady() error {
	select {
	case <-h.replica.Ready():
		return nil

	case <-h.primaryLink.Done():
		return linkFailure(h.primaryLink)

	case <-h.replicaLink.Done():
		return linkFailure(h.replicaLink)
	}
}

func linkFailure(l *drive.Link) error {
	if err := l.Err(); err != nil {
		return err
	}

	return fmt.Errorf("replication session ended before replica became ready: %w", drive.ErrClosed)
}

// Replica exposes the replicated peer.
func (h *Harness) Replica() *drive.Memory { return h.replica }

// Target returns the replica-backed validation read surface. Every read
// first waits for the replica to catch up to the primary's current log
// length: propagation over the link is push-based and implicit, and reads
// simply block until the announced content has arrived — there is no
// flush call anywhere.
func (h *Harness) Target() Target {
	return &replicaTarget{harness: h}
}

// Close tears down both links and joins the pumps. The first protocol
// error observed by either endpoint is returned.
func (h *Harness) Close() error {
	_ = h.primaryLink.Close()
	_ = h.replicaLink.Close()

	_ = h.pumps.Wait()

	if err := h.primaryLink.Err(); err != nil {
		return err
	}

	return h.replicaLink.Err()
}

// replicaTarget serves validation reads from the replica, gated on the
// replica having applied everything the primary has committed.
type replicaTarget struct {
	harness *Harness
}

func (t *replicaTarget) catchUp() {
	t.harness.replica.WaitApplied(t.harness.primary.Counters().Offset)
}

func (t *replicaTarget) Stat(path string) (drive.Stat, error) {
	t.catchUp()

	return t.harness.replica.Stat(path)
}

func (t *replicaTarget) Open(path string) (int, error) {
	t.catchUp()

	return t.harness.replica.Open(path)
}

func (t *replicaTarget) Read(fd int, buf []byte, bufOff, length, pos int) (int, error) {
	return t.harness.replica.Read(fd, buf, bufOff, length, pos)
}

func (t *replicaTarget) Close(fd int) error {
	return t.harness.replica.Close(fd)
}

func (t *replicaTarget) CreateReadStream(path string, start, length int) (io.ReadCloser, error) {
	t.catchUp()

	return t.harness.replica.CreateReadStream(path, start, length)
}
