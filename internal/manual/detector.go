// Package manual detects externally produced step outputs. A manual-mode
// step does not call the AI runner: the user drops the artifact into
// <project>/manual/ and the detector picks it up, either immediately (Load)
// or by watching the directory until it appears (Wait).
package manual

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/logging"
	"github.com/stageflow/stageflow/internal/step"
)

// DefaultPattern is the filename pattern manual outputs are expected to
// match. The {step} placeholder expands to the step identifier.
const DefaultPattern = "{step}.*"

// Detector finds manual output artifacts in a project's manual directory.
type Detector struct {
	dir     string
	pattern string
	logger  *logging.Logger
}

// NewDetector creates a Detector over <projectDir>/manual. An empty pattern
// falls back to DefaultPattern. The pattern is validated eagerly so a bad
// config fails at construction, not mid-run.
func NewDetector(projectDir, pattern string, logger *logging.Logger) (*Detector, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	// Validate with a representative step id; {step} expands to plain text.
	if _, err := glob.Compile(expand(pattern, step.First())); err != nil {
		return nil, errors.Wrapf(err, "invalid manual output pattern %q", pattern)
	}

	return &Detector{
		dir:     filepath.Join(projectDir, "manual"),
		pattern: pattern,
		logger:  logger,
	}, nil
}

// Dir returns the watched manual output directory.
func (d *Detector) Dir() string {
	return d.dir
}

// Load returns the manual output for s, or errors.ErrManualOutputNotFound
// when no matching artifact exists. When several files match, the
// lexically first wins.
func (d *Detector) Load(s step.Step) (string, error) {
	name, err := d.find(s)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		return "", errors.Wrapf(err, "reading manual output for step %s", s.ID())
	}

	d.logger.Debug("manual output loaded", "step", s.ID(), "file", name)
	return string(data), nil
}

// Wait blocks until a manual output for s appears or ctx is canceled. The
// directory is checked once before watching, so an artifact that already
// exists returns immediately.
func (d *Detector) Wait(ctx context.Context, s step.Step) (string, error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating manual output directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", errors.Wrap(err, "creating manual output watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(d.dir); err != nil {
		return "", errors.Wrapf(err, "watching %s", d.dir)
	}

	// A file created between the last Load and the watch starting would
	// otherwise be missed.
	if output, err := d.Load(s); err == nil {
		return output, nil
	} else if !errors.Is(err, errors.ErrManualOutputNotFound) {
		return "", err
	}

	matcher := d.matcher(s)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return "", errors.New("manual output watcher closed")
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if matcher.Match(filepath.Base(ev.Name)) {
				return d.Load(s)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", errors.New("manual output watcher closed")
			}
			return "", errors.Wrap(err, "manual output watcher")
		}
	}
}

// find returns the lexically first directory entry matching the pattern
// for s.
func (d *Detector) find(s step.Step) (string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.ErrManualOutputNotFound
		}
		return "", errors.Wrapf(err, "reading manual output directory")
	}

	matcher := d.matcher(s)
	best := ""
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !matcher.Match(name) {
			continue
		}
		if best == "" || name < best {
			best = name
		}
	}
	if best == "" {
		return "", errors.ErrManualOutputNotFound
	}
	return best, nil
}

// matcher compiles the filename glob for s. The pattern was validated at
// construction, so compilation cannot fail here.
func (d *Detector) matcher(s step.Step) glob.Glob {
	return glob.MustCompile(expand(d.pattern, s))
}

// expand substitutes the step identifier into the pattern.
func expand(pattern string, s step.Step) string {
	return strings.ReplaceAll(pattern, "{step}", s.ID())
}
