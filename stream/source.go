// Package stream implements per-source buffering and message framing for
// datalink log streams.
//
// Messages arrive as arbitrary UDP chunks with no alignment to message
// boundaries. Each source accumulates raw bytes and frames complete messages
// on the timestamp delimiter that opens every logged message. A message is
// only complete once the NEXT delimiter arrives, so the final span of every
// buffer is held back until either more data or a timeout flush releases it.
package stream

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// delimiterRe matches the timestamp header that starts every message,
// anchored to the beginning of a line: "HH:MM:SS DD-MM-YY UTC".
var delimiterRe = regexp.MustCompile(`(?m)^\d{2}:\d{2}:\d{2} \d{2}-\d{2}-\d{2} UTC`)

// Source holds the framing state for one listen port. Every sender on the
// port feeds the same buffer, so a message split across datagrams from
// different sender sockets still frames normally. All state is guarded by a
// single mutex so chunk appends and timeout flushes never interleave.
type Source struct {
	Port int

	mu        sync.Mutex
	buf       []byte
	lastFlush time.Time
}

// NewSource creates framing state for one listen port, idle as of now.
func NewSource(port int, now time.Time) *Source {
	return &Source{
		Port:      port,
		lastFlush: now,
	}
}

// Append adds a chunk to the source buffer and frames any messages that are
// now complete. With fewer than two delimiters in the buffer nothing is
// emitted; otherwise every span between adjacent delimiters is emitted
// trimmed, and the buffer retains everything from the last delimiter onward.
//
// If maxBytes > 0 and the buffer exceeds it while containing no delimiter at
// all, the buffer is discarded and reset reports true. A buffer that large
// with no delimiter can never frame a message and would otherwise grow
// without bound.
func (s *Source) Append(chunk []byte, maxBytes int, now time.Time) (messages []string, reset bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, chunk...)

	starts := delimiterStarts(s.buf)
	if len(starts) >= 2 {
		for i := 0; i < len(starts)-1; i++ {
			msg := strings.TrimSpace(string(s.buf[starts[i]:starts[i+1]]))
			if msg != "" {
				messages = append(messages, msg)
			}
		}
		s.buf = append(s.buf[:0], s.buf[starts[len(starts)-1]:]...)
		s.lastFlush = now
	}

	if maxBytes > 0 && len(s.buf) > maxBytes && len(starts) == 0 {
		s.buf = nil
		s.lastFlush = now
		reset = true
	}

	return messages, reset
}

// FlushOutcome reports what FlushIfStale did with a source.
type FlushOutcome int

const (
	// FlushNone: the source is empty or not yet stale.
	FlushNone FlushOutcome = iota
	// FlushEmitted: the held-back final message was released.
	FlushEmitted
	// FlushHeld: the source is stale but contains no delimiter, so its
	// buffer was left untouched. The caller should surface this; such a
	// buffer never frames on its own.
	FlushHeld
)

// FlushIfStale releases the held-back final span of a source that has gone
// quiet. A source is stale once more than twice the timeout has elapsed since
// its last flush. The flushed message starts at the first delimiter; a stale
// buffer with no delimiter is left untouched since it cannot be a message,
// and that condition is reported as FlushHeld.
func (s *Source) FlushIfStale(now time.Time, timeout time.Duration) (string, FlushOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		return "", FlushNone
	}
	if now.Sub(s.lastFlush) <= 2*timeout {
		return "", FlushNone
	}

	loc := delimiterRe.FindIndex(s.buf)
	if loc == nil {
		return "", FlushHeld
	}

	msg := strings.TrimSpace(string(s.buf[loc[0]:]))
	s.buf = nil
	s.lastFlush = now

	if msg == "" {
		return "", FlushNone
	}
	return msg, FlushEmitted
}

// Pending returns the number of buffered bytes awaiting a frame boundary.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// LastFlush returns the time of the most recent emit or reset.
func (s *Source) LastFlush() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFlush
}

// delimiterStarts returns the start offset of every delimiter in buf.
func delimiterStarts(buf []byte) []int {
	locs := delimiterRe.FindAllIndex(buf, -1)
	if locs == nil {
		return nil
	}
	starts := make([]int, len(locs))
	for i, loc := range locs {
		starts[i] = loc[0]
	}
	return starts
}
