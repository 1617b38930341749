package splitfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/acarsplit/classify"
	"github.com/c360/acarsplit/config"
)

const capturedLog = `12:00:01 01-02-24 UTC msg ! H1 F first
body line
12:00:02 01-02-24 UTC msg ! 5Z A second
12:00:03 01-02-24 UTC msg ! H1 F third
`

func labelClassifier(t *testing.T) classify.Classifier {
	t.Helper()
	c, err := classify.New(config.SplitByLabel, "")
	require.NoError(t, err)
	return c
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSplit_GroupsByBucket(t *testing.T) {
	input := writeInput(t, capturedLog)
	outDir := t.TempDir()

	result, err := Split(input, outDir, labelClassifier(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Messages)
	assert.Equal(t, 2, result.Buckets["acars_label_H1.txt"])
	assert.Equal(t, 1, result.Buckets["acars_label_5Z.txt"])

	h1, err := os.ReadFile(filepath.Join(outDir, "acars_label_H1.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"12:00:01 01-02-24 UTC msg ! H1 F first\nbody line\n\n12:00:03 01-02-24 UTC msg ! H1 F third",
		string(h1))
}

func TestSplit_FinalMessageIncluded(t *testing.T) {
	// Single message, no trailing header: a complete capture still frames it
	input := writeInput(t, "12:00:01 01-02-24 UTC only ! H1 F message")
	outDir := t.TempDir()

	result, err := Split(input, outDir, labelClassifier(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Messages)
}

func TestSplit_LeadingNoiseDiscarded(t *testing.T) {
	input := writeInput(t, "noise before any header\n"+capturedLog)
	outDir := t.TempDir()

	result, err := Split(input, outDir, labelClassifier(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Messages)

	h1, err := os.ReadFile(filepath.Join(outDir, "acars_label_H1.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(h1), "noise")
}

func TestSplit_TruncatesPreviousOutput(t *testing.T) {
	input := writeInput(t, capturedLog)
	outDir := t.TempDir()
	stale := filepath.Join(outDir, "acars_label_H1.txt")
	require.NoError(t, os.WriteFile(stale, []byte("stale content"), 0o644))

	_, err := Split(input, outDir, labelClassifier(t), nil)
	require.NoError(t, err)

	data, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}

func TestSplit_MissingInput(t *testing.T) {
	_, err := Split(filepath.Join(t.TempDir(), "missing.log"), t.TempDir(), labelClassifier(t), nil)
	assert.Error(t, err)
}

func TestSplit_NoDelimiters(t *testing.T) {
	input := writeInput(t, "just some text without any headers\n")

	_, err := Split(input, t.TempDir(), labelClassifier(t), nil)
	require.Error(t, err)
}

func TestSplit_NilClassifier(t *testing.T) {
	input := writeInput(t, capturedLog)
	_, err := Split(input, t.TempDir(), nil, nil)
	assert.Error(t, err)
}
