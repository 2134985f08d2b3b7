// Package logs exposes the tail of Sentinel's append-only log files.
package logs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// DefaultMaxLines is used when a caller asks for zero or fewer lines.
const DefaultMaxLines = 100

// ErrUnknownLog is returned for a log kind with no configured path.
var ErrUnknownLog = errors.New("unknown log")

// Kind names one of the log files.
type Kind string

const (
	KindSecurity Kind = "security"
	KindAudit    Kind = "audit"
	KindError    Kind = "error"
)

// ReadRecent returns at most maxLines non-blank lines from the end of the file at
// path, oldest first. A missing file yields an empty slice and no error. The whole
// file is read before trimming.
func ReadRecent(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	lines := make([]string, 0, maxLines)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// Reader resolves log kinds to file paths.
type Reader struct {
	paths map[Kind]string
}

// NewReader maps each kind to its file. Kinds with an empty path are unknown.
func NewReader(security, audit, errorLog string) *Reader {
	paths := make(map[Kind]string, 3)
	for k, p := range map[Kind]string{KindSecurity: security, KindAudit: audit, KindError: errorLog} {
		if p != "" {
			paths[k] = p
		}
	}
	return &Reader{paths: paths}
}

// Recent returns the tail of the named log.
func (r *Reader) Recent(kind Kind, maxLines int) ([]string, error) {
	path, ok := r.paths[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLog, kind)
	}
	return ReadRecent(path, maxLines)
}

// Path returns the configured file for kind.
func (r *Reader) Path(kind Kind) (string, bool) {
	p, ok := r.paths[kind]
	return p, ok
}
