package fuzz

import "fmt"

// Kind identifies one fuzz operation. The set is closed: selection walks
// the static weight table below, there is no open-ended registration.
type Kind uint8

// Fuzz operation kinds.
const (
	KindWriteFile Kind = iota
	KindDeleteFile
	KindOverwriteFile
	KindStatefulRead
	KindStatFile
	KindStatDirectory
	KindDeleteNonexistent
	KindReadStream
	KindStatelessRead
	KindOpenFile
	KindWriteAndMkdir
)

// String returns the operation name.
func (k Kind) String() string {
	switch k {
	case KindWriteFile:
		return "writeFile"
	case KindDeleteFile:
		return "deleteFile"
	case KindOverwriteFile:
		return "overwriteFile"
	case KindStatefulRead:
		return "statefulRead"
	case KindStatFile:
		return "statFile"
	case KindStatDirectory:
		return "statDirectory"
	case KindDeleteNonexistent:
		return "deleteNonexistent"
	case KindReadStream:
		return "readStream"
	case KindStatelessRead:
		return "statelessRead"
	case KindOpenFile:
		return "openFile"
	case KindWriteAndMkdir:
		return "writeAndMkdir"
	default:
		return "unknown"
	}
}

// weightedKind pairs an operation with its relative selection weight.
// Declaration order is the cumulative-walk order; changing it changes which
// operation a given draw selects, so it is part of a seed's identity.
type weightedKind struct {
	kind   Kind
	weight int
}

var weightTable = [...]weightedKind{
	{KindWriteFile, 10},
	{KindDeleteFile, 5},
	{KindOverwriteFile, 5},
	{KindStatefulRead, 5},
	{KindStatFile, 3},
	{KindStatDirectory, 3},
	{KindDeleteNonexistent, 2},
	{KindReadStream, 2},
	{KindStatelessRead, 2},
	{KindOpenFile, 1},
	{KindWriteAndMkdir, 1},
}

// totalWeight is the sum of all weights in weightTable.
var totalWeight = func() int {
	sum := 0
	for _, entry := range weightTable {
		sum += entry.weight
	}

	return sum
}()

// pickKind maps a uniform draw in [0, totalWeight) to an operation by
// walking the cumulative weight table. It is a pure function of the draw.
func pickKind(draw int) Kind {
	cumulative := 0

	for _, entry := range weightTable {
		cumulative += entry.weight
		if draw < cumulative {
			return entry.kind
		}
	}

	// Unreachable for draws inside [0, totalWeight).
	return weightTable[len(weightTable)-1].kind
}

// Result is one run-log record. The log exists purely for diagnosis of a
// failed run; the validation oracle never consults it.
//
// Dir is set only by the combined write+mkdir operation, which touches two
// paths at once: Path names the file, Dir the directory.
type Result struct {
	Kind   Kind   `json:"kind"`
	Path   string `json:"path,omitempty"`
	Dir    string `json:"dir,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// MarshalText makes Kind readable in JSON run-log artifacts.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses an operation name, so run-log artifacts round-trip.
func (k *Kind) UnmarshalText(text []byte) error {
	for candidate := KindWriteFile; candidate <= KindWriteAndMkdir; candidate++ {
		if candidate.String() == string(text) {
			*k = candidate

			return nil
		}
	}

	return fmt.Errorf("unknown operation kind %q", text)
}
