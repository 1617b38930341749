package stream

import (
	"time"
)

// Table holds the framing state for every configured listen port. One source
// exists per port, created up front at startup; the set never changes while
// the engine runs, so lookups need no locking. The sources themselves are
// internally synchronized.
type Table struct {
	sources map[int]*Source
}

// NewTable creates the fixed source set for the given listen ports, all idle
// as of now.
func NewTable(ports []int, now time.Time) *Table {
	sources := make(map[int]*Source, len(ports))
	for _, port := range ports {
		sources[port] = NewSource(port, now)
	}
	return &Table{sources: sources}
}

// Get returns the source for a listen port, or nil for an unconfigured port.
func (t *Table) Get(port int) *Source {
	return t.sources[port]
}

// Snapshot returns all sources. The slice is a copy; the sources are shared
// and internally synchronized.
func (t *Table) Snapshot() []*Source {
	out := make([]*Source, 0, len(t.sources))
	for _, src := range t.sources {
		out = append(out, src)
	}
	return out
}

// Len returns the number of configured sources.
func (t *Table) Len() int {
	return len(t.sources)
}
