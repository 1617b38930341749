package engine

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/acarsplit/config"
	"github.com/c360/acarsplit/metric"
)

func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func testConfig(t *testing.T, ports ...int) *config.Config {
	t.Helper()
	return &config.Config{
		Host:           "127.0.0.1",
		Ports:          ports,
		OutputDir:      t.TempDir(),
		BufferTimeout:  50 * time.Millisecond,
		SplitBy:        config.SplitByLabel,
		MaxBufferBytes: config.DefaultMaxBufferBytes,
	}
}

func startEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil, metric.NewMetricsRegistry())
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop(2 * time.Second) })
	return e
}

func sendUDP(t *testing.T, port int, payload string) {
	t.Helper()
	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
}

func waitForBucket(t *testing.T, dir, bucket string) string {
	t.Helper()
	path := filepath.Join(dir, bucket)
	var data []byte
	require.Eventually(t, func() bool {
		var err error
		data, err = os.ReadFile(path)
		return err == nil && len(data) > 0
	}, 3*time.Second, 20*time.Millisecond, "bucket %s never appeared", bucket)
	return string(data)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)

	_, err = New(&config.Config{}, nil, nil)
	assert.Error(t, err, "no ports")
}

func TestNew_NormalizesStrategy(t *testing.T) {
	cfg := testConfig(t, freePort(t))
	cfg.SplitBy = "bogus"

	e, err := New(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.SplitByLabel, e.classifier.Name())
}

func TestEngine_EndToEnd(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(t, port)
	startEngine(t, cfg)

	// Two complete messages plus the start of a third; only the first two
	// can be framed immediately
	sendUDP(t, port, "12:00:01 01-02-24 UTC msg ! H1 F one\n"+
		"12:00:02 01-02-24 UTC msg ! 5Z A two\n"+
		"12:00:03 01-02-24 UTC msg ! H1 F three\n")

	h1 := waitForBucket(t, cfg.OutputDir, "acars_label_H1.txt")
	assert.Equal(t, "12:00:01 01-02-24 UTC msg ! H1 F one", h1)

	z5 := waitForBucket(t, cfg.OutputDir, "acars_label_5Z.txt")
	assert.Equal(t, "12:00:02 01-02-24 UTC msg ! 5Z A two", z5)

	// The third message is held back until the sweeper flushes it
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "acars_label_H1.txt"))
		return err == nil &&
			string(data) == "12:00:01 01-02-24 UTC msg ! H1 F one\n\n12:00:03 01-02-24 UTC msg ! H1 F three"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestEngine_ChunkedMessageAcrossDatagrams(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(t, port)
	startEngine(t, cfg)

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	// One message split across three datagrams, completed by the next header
	for _, chunk := range []string{
		"12:00:01 01-02-24 UTC first ",
		"half ! H1 F and second ",
		"half\n12:00:02 01-02-24 UTC next\n",
	} {
		_, err := conn.Write([]byte(chunk))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	got := waitForBucket(t, cfg.OutputDir, "acars_label_H1.txt")
	assert.Equal(t, "12:00:01 01-02-24 UTC first half ! H1 F and second half", got)
}

func TestEngine_FramesAcrossSenderSockets(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(t, port)
	// A very long timeout rules out the sweeper; only ordinary framing can
	// release the first message
	cfg.BufferTimeout = time.Hour
	startEngine(t, cfg)

	// Each sendUDP dials a fresh socket, so the two chunks arrive from two
	// different sender addresses. The port's buffer is shared, so the second
	// header completes the first message.
	sendUDP(t, port, "12:00:01 01-02-24 UTC msg ! H1 F one\nbody1\n")
	time.Sleep(10 * time.Millisecond)
	sendUDP(t, port, "12:00:02 01-02-24 UTC msg ! 5Z A two\nbody2\n")

	got := waitForBucket(t, cfg.OutputDir, "acars_label_H1.txt")
	assert.Equal(t, "12:00:01 01-02-24 UTC msg ! H1 F one\nbody1", got)
}

func TestEngine_MultiplePorts(t *testing.T) {
	portA, portB := freePort(t), freePort(t)
	cfg := testConfig(t, portA, portB)
	startEngine(t, cfg)

	sendUDP(t, portA, "12:00:01 01-02-24 UTC from A ! H1 F x\n12:00:02 01-02-24 UTC next\n")
	sendUDP(t, portB, "12:00:01 01-02-24 UTC from B ! 5Z A y\n12:00:02 01-02-24 UTC next\n")

	assert.Equal(t, "12:00:01 01-02-24 UTC from A ! H1 F x",
		waitForBucket(t, cfg.OutputDir, "acars_label_H1.txt"))
	assert.Equal(t, "12:00:01 01-02-24 UTC from B ! 5Z A y",
		waitForBucket(t, cfg.OutputDir, "acars_label_5Z.txt"))
}

func TestEngine_TimeoutFlush(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(t, port)
	startEngine(t, cfg)

	// A single message with no follow-up header is only released by timeout
	sendUDP(t, port, "12:00:01 01-02-24 UTC lonely ! H1 F msg\n")

	got := waitForBucket(t, cfg.OutputDir, "acars_label_H1.txt")
	assert.Equal(t, "12:00:01 01-02-24 UTC lonely ! H1 F msg", got)
}

func TestEngine_UnclassifiedFallback(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(t, port)
	startEngine(t, cfg)

	sendUDP(t, port, "12:00:01 01-02-24 UTC no label marker\n12:00:02 01-02-24 UTC next\n")

	got := waitForBucket(t, cfg.OutputDir, "acars_label_unclassified.txt")
	assert.Equal(t, "12:00:01 01-02-24 UTC no label marker", got)
}

func TestEngine_Lifecycle(t *testing.T) {
	cfg := testConfig(t, freePort(t))
	e, err := New(cfg, nil, nil)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	assert.Error(t, e.Start(context.Background()))

	health := e.Health()
	assert.NotEmpty(t, health)
	for name, status := range health {
		assert.True(t, status.Healthy, "component %s unhealthy", name)
	}

	require.NoError(t, e.Stop(2*time.Second))
	require.NoError(t, e.Stop(2*time.Second))
}
