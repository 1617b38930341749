// Package classify routes framed datalink messages to output buckets.
//
// A Classifier inspects a complete message and returns the bucket file name
// the message belongs in. Classification is pure string inspection: the same
// message always maps to the same bucket regardless of source or arrival
// order.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360/acarsplit/config"
	"github.com/c360/acarsplit/errors"
)

// Unclassified is the key used when a strategy cannot extract its field.
const Unclassified = "unclassified"

var (
	// Message label, e.g. "... ! H1 F" yields "H1".
	labelRe = regexp.MustCompile(`!\s+([A-Za-z0-9]{2})\s+[A-Za-z0-9]`)

	// Aircraft registration from the AES/GES header line. Satellite-relayed
	// registrations carry a leading dot which is not part of the tail.
	tailRe = regexp.MustCompile(`AES:[A-F0-9]+\s+GES:[A-Z0-9]+\s+\d+\s+(\.?[A-Za-z0-9-]+)`)

	// Characters permitted in bucket file names; everything else becomes '_'.
	unsafeRe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// Classifier maps a complete message to the bucket file it belongs in.
type Classifier interface {
	// Name returns the strategy name.
	Name() string

	// Bucket returns the output file name for the message.
	Bucket(message string) string
}

// New builds the classifier for the given strategy. The keyword argument is
// only consulted for the keyword strategy.
func New(strategy, keyword string) (Classifier, error) {
	switch strategy {
	case config.SplitByLabel:
		return labelClassifier{}, nil
	case config.SplitByTail:
		return tailClassifier{}, nil
	case config.SplitByType:
		return typeClassifier{}, nil
	case config.SplitByKeyword:
		if strings.TrimSpace(keyword) == "" {
			return nil, errors.WrapFatal(errors.ErrInvalidConfig, "classify", "New",
				"keyword strategy requires a non-empty keyword")
		}
		return keywordClassifier{keyword: keyword}, nil
	default:
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "classify", "New",
			fmt.Sprintf("unknown strategy %q", strategy))
	}
}

// bucketName renders the canonical bucket file name for a strategy and key.
func bucketName(strategy, key string) string {
	return fmt.Sprintf("acars_%s_%s.txt", strategy, sanitize(key))
}

// sanitize makes a key safe for use inside a file name.
func sanitize(key string) string {
	return unsafeRe.ReplaceAllString(key, "_")
}

type labelClassifier struct{}

func (labelClassifier) Name() string { return config.SplitByLabel }

func (labelClassifier) Bucket(message string) string {
	if m := labelRe.FindStringSubmatch(message); m != nil {
		return bucketName(config.SplitByLabel, m[1])
	}
	return bucketName(config.SplitByLabel, Unclassified)
}

type tailClassifier struct{}

func (tailClassifier) Name() string { return config.SplitByTail }

func (tailClassifier) Bucket(message string) string {
	if m := tailRe.FindStringSubmatch(message); m != nil {
		tail := strings.TrimPrefix(m[1], ".")
		if tail != "" {
			return bucketName(config.SplitByTail, tail)
		}
	}
	return bucketName(config.SplitByTail, Unclassified)
}

type typeClassifier struct{}

func (typeClassifier) Name() string { return config.SplitByType }

// Bucket checks application markers in priority order. A message carrying
// both CPDLC and ADS-C markers files under CPDLC.
func (typeClassifier) Bucket(message string) string {
	switch {
	case strings.Contains(message, "FANS-1/A CPDLC"):
		return bucketName(config.SplitByType, "CPDLC")
	case strings.Contains(message, "ADS-C"):
		return bucketName(config.SplitByType, "ADS-C")
	case strings.Contains(message, "MIAM"):
		return bucketName(config.SplitByType, "MIAM")
	default:
		return bucketName(config.SplitByType, "OTHER")
	}
}

type keywordClassifier struct {
	keyword string
}

func (keywordClassifier) Name() string { return config.SplitByKeyword }

func (kc keywordClassifier) Bucket(message string) string {
	if strings.Contains(strings.ToLower(message), strings.ToLower(kc.keyword)) {
		return fmt.Sprintf("acars_containing_%s.txt", sanitize(kc.keyword))
	}
	return fmt.Sprintf("acars_not_containing_%s.txt", sanitize(kc.keyword))
}
