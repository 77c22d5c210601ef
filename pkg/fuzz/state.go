package fuzz

import "slices"

// FileRecord is the shadow model of one committed file.
type FileRecord struct {
	Path    string
	Content []byte
}

// DirRecord is the shadow model of one directory, carrying the drive's
// append counters as snapshotted at creation. Directories are never
// mutated after creation.
type DirRecord struct {
	Path       string
	Offset     uint64
	ByteOffset uint64
}

// Descriptor is the shadow model of one open file descriptor.
//
// Content is the file content bound at open time and stays fixed for the
// descriptor's lifetime, even if the underlying file is later overwritten
// or deleted; stateful reads validate against this snapshot.
type Descriptor struct {
	FD      int
	Path    string
	Content []byte
	Pos     int
	Started bool
}

// State is the fuzzer's independent in-memory model of expected committed
// drive content: tracked files, tracked directories, and the open
// descriptor table.
//
// Each map is paired with an insertion-ordered key slice so that "pick the
// k-th tracked entry" is well defined. Go map iteration order is
// deliberately randomized, so selecting via map walks would silently make
// runs seed-unreproducible.
//
// The file and directory key sets are always disjoint; name generation
// retries until a candidate is absent from both.
type State struct {
	files     map[string]*FileRecord
	fileOrder []string

	dirs     map[string]*DirRecord
	dirOrder []string

	fds     map[int]*Descriptor
	fdOrder []int
}

// NewState returns an empty shadow model.
func NewState() *State {
	return &State{
		files: make(map[string]*FileRecord),
		dirs:  make(map[string]*DirRecord),
		fds:   make(map[int]*Descriptor),
	}
}

// HasPath reports whether path is tracked as a file or a directory.
func (s *State) HasPath(path string) bool {
	if _, exists := s.files[path]; exists {
		return true
	}

	_, exists := s.dirs[path]

	return exists
}

// TrackFile records a successful write. An overwrite replaces the content
// in place and keeps the path's original insertion position.
func (s *State) TrackFile(path string, content []byte) {
	if existing, exists := s.files[path]; exists {
		existing.Content = content

		return
	}

	s.files[path] = &FileRecord{Path: path, Content: content}
	s.fileOrder = append(s.fileOrder, path)
}

// ForgetFile records a successful delete.
func (s *State) ForgetFile(path string) {
	if _, exists := s.files[path]; !exists {
		return
	}

	delete(s.files, path)

	if idx := slices.Index(s.fileOrder, path); idx >= 0 {
		s.fileOrder = slices.Delete(s.fileOrder, idx, idx+1)
	}
}

// TrackDir records a successful directory creation.
func (s *State) TrackDir(path string, offset, byteOffset uint64) {
	if _, exists := s.dirs[path]; exists {
		return
	}

	s.dirs[path] = &DirRecord{Path: path, Offset: offset, ByteOffset: byteOffset}
	s.dirOrder = append(s.dirOrder, path)
}

// TrackDescriptor records a newly opened descriptor.
func (s *State) TrackDescriptor(desc *Descriptor) {
	if _, exists := s.fds[desc.FD]; exists {
		return
	}

	s.fds[desc.FD] = desc
	s.fdOrder = append(s.fdOrder, desc.FD)
}

// ForgetDescriptor removes a descriptor from tracking. Forgetting an
// already-removed descriptor is a no-op: a close signal on an unknown
// descriptor means it is already terminal, not that something went wrong.
func (s *State) ForgetDescriptor(fd int) {
	if _, exists := s.fds[fd]; !exists {
		return
	}

	delete(s.fds, fd)

	if idx := slices.Index(s.fdOrder, fd); idx >= 0 {
		s.fdOrder = slices.Delete(s.fdOrder, idx, idx+1)
	}
}

// PickFile selects a uniformly random tracked file, by insertion order.
// ok=false means no files are tracked and the caller should no-op.
func (s *State) PickFile(r *Rand) (*FileRecord, bool) {
	idx, ok := r.Int(len(s.fileOrder) - 1)
	if !ok {
		return nil, false
	}

	return s.files[s.fileOrder[idx]], true
}

// PickDir selects a uniformly random tracked directory.
func (s *State) PickDir(r *Rand) (*DirRecord, bool) {
	idx, ok := r.Int(len(s.dirOrder) - 1)
	if !ok {
		return nil, false
	}

	return s.dirs[s.dirOrder[idx]], true
}

// PickDescriptor selects a uniformly random open descriptor.
func (s *State) PickDescriptor(r *Rand) (*Descriptor, bool) {
	idx, ok := r.Int(len(s.fdOrder) - 1)
	if !ok {
		return nil, false
	}

	return s.fds[s.fdOrder[idx]], true
}

// FileCount returns the number of tracked files.
func (s *State) FileCount() int { return len(s.fileOrder) }

// DirCount returns the number of tracked directories.
func (s *State) DirCount() int { return len(s.dirOrder) }

// DescriptorCount returns the number of tracked open descriptors.
func (s *State) DescriptorCount() int { return len(s.fdOrder) }
