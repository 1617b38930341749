// Package splitfile splits an already-captured log file into bucket files in
// one pass. Unlike the live engine, the input is complete, so the final
// message does not wait for a following header: everything from the last
// delimiter to end of file is a message.
package splitfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/c360/acarsplit/classify"
	"github.com/c360/acarsplit/errors"
)

// Same message header as the live framer: "HH:MM:SS DD-MM-YY UTC" at the
// start of a line.
var delimiterRe = regexp.MustCompile(`(?m)^\d{2}:\d{2}:\d{2} \d{2}-\d{2}-\d{2} UTC`)

// Result reports what a split produced.
type Result struct {
	Messages int            // messages framed from the input
	Buckets  map[string]int // messages written per bucket file
}

// Split reads a captured log file, frames it into messages, and writes each
// bucket file in full (truncating any previous contents). Bucket files are
// written whole rather than appended since a one-shot split is a
// reproducible transformation of its input.
func Split(inputPath, outputDir string, classifier classify.Classifier, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "splitfile", "Split",
			"classifier is required")
	}

	data, err := os.ReadFile(inputPath) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.WrapFatal(err, "splitfile", "Split",
			fmt.Sprintf("read %s", inputPath))
	}

	messages := frame(data)
	if len(messages) == 0 {
		logger.Warn("no message headers found in input", "path", inputPath)
		return nil, errors.WrapInvalid(errors.ErrNoDelimiter, "splitfile", "Split",
			fmt.Sprintf("%s contains no message headers", inputPath))
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "splitfile", "Split", "create output directory")
	}

	grouped := make(map[string][]string)
	for _, msg := range messages {
		bucket := classifier.Bucket(msg)
		grouped[bucket] = append(grouped[bucket], msg)
	}

	result := &Result{
		Messages: len(messages),
		Buckets:  make(map[string]int, len(grouped)),
	}

	for bucket, msgs := range grouped {
		path := filepath.Join(outputDir, bucket)
		content := strings.Join(msgs, "\n\n")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec
			return nil, errors.WrapTransient(errors.ErrWriteFailed, "splitfile", "Split",
				fmt.Sprintf("write %s: %v", path, err))
		}
		result.Buckets[bucket] = len(msgs)
		logger.Info("wrote bucket", "bucket", bucket, "messages", len(msgs))
	}

	return result, nil
}

// frame splits the full capture into messages. Spans run from each delimiter
// to the next, and the final span runs to end of file. Content before the
// first delimiter is not a message and is discarded.
func frame(data []byte) []string {
	locs := delimiterRe.FindAllIndex(data, -1)
	if len(locs) == 0 {
		return nil
	}

	messages := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(data)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		msg := strings.TrimSpace(string(data[loc[0]:end]))
		if msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}
