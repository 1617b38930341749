package stream

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	delim1 = "12:00:01 01-02-24 UTC"
	delim2 = "12:00:05 01-02-24 UTC"
	delim3 = "12:00:09 01-02-24 UTC"
)

func TestSource_NoDelimiter(t *testing.T) {
	src := NewSource(5571, time.Now())

	messages, reset := src.Append([]byte("partial fragment with no header"), 0, time.Now())
	assert.Empty(t, messages)
	assert.False(t, reset)
	assert.Equal(t, 31, src.Pending())
}

func TestSource_SingleDelimiterHeldBack(t *testing.T) {
	src := NewSource(5571, time.Now())

	chunk := delim1 + " AES:400A8D GES:82 2 N104UA\n! H1 F body\n"
	messages, _ := src.Append([]byte(chunk), 0, time.Now())

	// One delimiter means the message may still be growing
	assert.Empty(t, messages)
	assert.Equal(t, len(chunk), src.Pending())
}

func TestSource_TwoDelimitersEmitOne(t *testing.T) {
	src := NewSource(5571, time.Now())

	chunk := delim1 + " first message\n" + delim2 + " second message\n"
	messages, _ := src.Append([]byte(chunk), 0, time.Now())

	require.Len(t, messages, 1)
	assert.Equal(t, delim1+" first message", messages[0])

	// The second message is retained from its delimiter onward
	assert.Equal(t, len(delim2+" second message\n"), src.Pending())
}

func TestSource_NDelimitersEmitNMinusOne(t *testing.T) {
	src := NewSource(5571, time.Now())

	var sb strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&sb, "12:00:0%d 01-02-24 UTC message %d\n", i, i)
	}

	messages, _ := src.Append([]byte(sb.String()), 0, time.Now())
	require.Len(t, messages, 4)
	for i, msg := range messages {
		assert.Equal(t, fmt.Sprintf("12:00:0%d 01-02-24 UTC message %d", i, i), msg)
	}
}

func TestSource_ChunkedDelivery(t *testing.T) {
	src := NewSource(5571, time.Now())

	full := delim1 + " AES:400A8D GES:82 2 N104UA\n! H1 F long message body\n" +
		delim2 + " next message\n"

	// Deliver one byte at a time; framing must be identical to one big chunk
	var got []string
	for i := 0; i < len(full); i++ {
		messages, _ := src.Append([]byte{full[i]}, 0, time.Now())
		got = append(got, messages...)
	}

	require.Len(t, got, 1)
	assert.Equal(t, delim1+" AES:400A8D GES:82 2 N104UA\n! H1 F long message body", got[0])
}

func TestSource_DelimiterMidLineIgnored(t *testing.T) {
	src := NewSource(5571, time.Now())

	// The second timestamp is not at the start of a line
	chunk := delim1 + " body mentioning " + delim2 + " inline\n"
	messages, _ := src.Append([]byte(chunk), 0, time.Now())
	assert.Empty(t, messages)
}

func TestSource_AppendUpdatesLastFlushOnlyOnEmit(t *testing.T) {
	start := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	src := NewSource(5571, start)

	later := start.Add(time.Minute)
	src.Append([]byte(delim1+" lone message\n"), 0, later)
	assert.Equal(t, start, src.LastFlush())

	emitTime := start.Add(2 * time.Minute)
	messages, _ := src.Append([]byte(delim2+" follow-up\n"), 0, emitTime)
	require.Len(t, messages, 1)
	assert.Equal(t, emitTime, src.LastFlush())
}

func TestSource_CapResetWithoutDelimiter(t *testing.T) {
	src := NewSource(5571, time.Now())

	junk := strings.Repeat("x", 100)
	messages, reset := src.Append([]byte(junk), 64, time.Now())
	assert.Empty(t, messages)
	assert.True(t, reset)
	assert.Equal(t, 0, src.Pending())
}

func TestSource_CapSparesBufferWithDelimiter(t *testing.T) {
	src := NewSource(5571, time.Now())

	chunk := delim1 + " " + strings.Repeat("x", 100)
	messages, reset := src.Append([]byte(chunk), 64, time.Now())
	assert.Empty(t, messages)
	assert.False(t, reset)
	assert.Equal(t, len(chunk), src.Pending())
}

func TestSource_FlushIfStale(t *testing.T) {
	start := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	timeout := time.Minute
	src := NewSource(5571, start)

	src.Append([]byte("noise before header\n"+delim1+" tail message\n"), 0, start)

	// Not stale yet at exactly 2x timeout
	_, outcome := src.FlushIfStale(start.Add(2*timeout), timeout)
	assert.Equal(t, FlushNone, outcome)

	msg, outcome := src.FlushIfStale(start.Add(2*timeout+time.Second), timeout)
	require.Equal(t, FlushEmitted, outcome)
	// Flush starts at the first delimiter, dropping leading noise
	assert.Equal(t, delim1+" tail message", msg)
	assert.Equal(t, 0, src.Pending())
}

func TestSource_FlushIfStale_NoDelimiterHeld(t *testing.T) {
	start := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	timeout := time.Minute
	src := NewSource(5571, start)

	src.Append([]byte("garbage with no header"), 0, start)

	// The buffer is reported as held, not flushed, and stays untouched
	_, outcome := src.FlushIfStale(start.Add(time.Hour), timeout)
	assert.Equal(t, FlushHeld, outcome)
	assert.Equal(t, 22, src.Pending())
}

func TestSource_FlushIfStale_EmptyBuffer(t *testing.T) {
	src := NewSource(5571, time.Time{})
	_, outcome := src.FlushIfStale(time.Now(), time.Minute)
	assert.Equal(t, FlushNone, outcome)
}

func TestSources_Independent(t *testing.T) {
	now := time.Now()
	a := NewSource(5571, now)
	b := NewSource(5572, now)

	// Interleaved chunks: each source frames only its own traffic
	a.Append([]byte(delim1+" from A part one "), 0, now)
	b.Append([]byte(delim1+" from B "), 0, now)
	aMsgs, _ := a.Append([]byte("continued\n"+delim2+" A next\n"), 0, now)
	bMsgs, _ := b.Append([]byte("still open"), 0, now)

	require.Len(t, aMsgs, 1)
	assert.Equal(t, delim1+" from A part one continued", aMsgs[0])
	assert.Empty(t, bMsgs)
	assert.Positive(t, b.Pending())
}
