// Package sink persists captured artifacts and completed downloads into the
// output directory.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/Sternrassler/mjp-export/pkg/logging"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

// Prometheus metrics for persisted artifacts.
var (
	mjpArtifactsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjp_artifacts_saved_total",
		Help: "Total artifacts written to the output directory by kind",
	}, []string{"kind"})

	mjpArtifactBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjp_artifact_bytes_total",
		Help: "Total bytes written to the output directory by kind",
	}, []string{"kind"})
)

const lockFileName = ".mjp-export.lock"

var (
	// ErrLocked is returned when another run holds the output directory.
	ErrLocked = errors.New("output directory is locked by another run")

	// ErrEmptyFilename is returned for artifacts without a usable name.
	ErrEmptyFilename = errors.New("empty filename")
)

// Artifact is a captured document handed to the sink and then discarded.
type Artifact struct {
	Content  []byte
	Filename string
	MIMEType string
}

// Sink accepts artifacts and completed downloads.
type Sink interface {
	// Save writes the artifact under its filename.
	Save(ctx context.Context, a Artifact) (string, error)

	// Place moves a completed download from src to filename.
	Place(ctx context.Context, src, filename string) (string, error)
}

// Dir writes artifacts into a directory.
type Dir struct {
	root   string
	lock   *flock.Flock
	logger zerolog.Logger
}

// NewDir creates the output directory if needed.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Dir{
		root:   root,
		lock:   flock.New(filepath.Join(root, lockFileName)),
		logger: logging.NewLogger("sink"),
	}, nil
}

// Root returns the output directory.
func (d *Dir) Root() string {
	return d.root
}

// Lock takes the exclusive run lock on the output directory.
func (d *Dir) Lock() error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, d.root)
	}
	return nil
}

// Unlock releases the run lock.
func (d *Dir) Unlock() error {
	return d.lock.Unlock()
}

// Save implements Sink. Existing files with the same name are replaced.
func (d *Dir) Save(ctx context.Context, a Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := SanitizeFilename(a.Filename)
	if name == "" {
		return "", ErrEmptyFilename
	}

	dst := filepath.Join(d.root, name)
	tmp, err := os.CreateTemp(d.root, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(a.Content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}

	kind := kindOf(a.MIMEType, name)
	mjpArtifactsSavedTotal.WithLabelValues(kind).Inc()
	mjpArtifactBytesTotal.WithLabelValues(kind).Add(float64(len(a.Content)))
	d.logger.Info().
		Str("file", name).
		Str("mime_type", a.MIMEType).
		Int("bytes", len(a.Content)).
		Msg("Artifact saved")
	return dst, nil
}

// Place implements Sink. It renames src into the output directory, copying
// when src lives on another filesystem.
func (d *Dir) Place(ctx context.Context, src, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := SanitizeFilename(filename)
	if name == "" {
		return "", ErrEmptyFilename
	}
	dst := filepath.Join(d.root, name)

	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat download: %w", err)
	}

	if err := os.Rename(src, dst); err != nil {
		if err := copyFile(src, dst); err != nil {
			return "", fmt.Errorf("place %s: %w", name, err)
		}
		_ = os.Remove(src)
	}

	kind := kindOf("", name)
	mjpArtifactsSavedTotal.WithLabelValues(kind).Inc()
	mjpArtifactBytesTotal.WithLabelValues(kind).Add(float64(info.Size()))
	d.logger.Info().
		Str("file", name).
		Int64("bytes", info.Size()).
		Msg("Download placed")
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// SanitizeFilename normalizes name to NFC and removes path separators and
// control characters so a transmitter label can never escape the output
// directory.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '-'
		case r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '-'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

func kindOf(mimeType, name string) string {
	switch {
	case strings.HasPrefix(mimeType, "text/html"), strings.HasSuffix(strings.ToLower(name), ".html"):
		return "html"
	case strings.HasSuffix(strings.ToLower(name), ".zip"):
		return "zip"
	default:
		return "other"
	}
}
