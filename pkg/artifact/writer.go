package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mirageui/mirage/internal/errors"
	"github.com/mirageui/mirage/internal/metrics"
)

const manifestName = "manifest.json"

// hashLen is how many hex characters of the sha256 qualify the filename.
const hashLen = 12

// Writer stores generated modules content-addressed under a root
// directory, one subdirectory per unit, and keeps manifest.json mapping
// unit name to its current artifact path.
type Writer struct {
	dir    string
	prefix string
	ext    string
	log    *slog.Logger
	sink   Sink

	manifest map[string]string
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithPrefix sets the artifact filename prefix (default "unit").
func WithPrefix(prefix string) WriterOption {
	return func(w *Writer) { w.prefix = prefix }
}

// WithExt sets the artifact extension (default ".mjs").
func WithExt(ext string) WriterOption {
	return func(w *Writer) {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.ext = ext
	}
}

// WithLogger sets the writer's logger.
func WithLogger(log *slog.Logger) WriterOption {
	return func(w *Writer) { w.log = log }
}

// WithSink attaches a publish sink invoked after each local write.
func WithSink(s Sink) WriterOption {
	return func(w *Writer) { w.sink = s }
}

// NewWriter creates a writer rooted at dir, loading any existing
// manifest so unchanged units keep their entries across runs.
func NewWriter(dir string, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		dir:      dir,
		prefix:   "unit",
		ext:      ".mjs",
		log:      slog.Default(),
		manifest: make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.New("E130").WithDetail(err.Error()).Wrap(err)
	}
	if data, err := os.ReadFile(filepath.Join(dir, manifestName)); err == nil {
		if err := json.Unmarshal(data, &w.manifest); err != nil {
			// A corrupt manifest is rebuilt from scratch, not fatal.
			w.log.Warn("discarding unreadable manifest", "err", err)
			w.manifest = make(map[string]string)
		}
	}
	return w, nil
}

// Result reports what one Write did.
type Result struct {
	Path    string // manifest-relative artifact path
	Hash    string
	Skipped bool     // content hash matched the existing file
	Removed []string // stale same-unit artifacts deleted
}

// Write stores mod under "<unit>/<prefix>_<hash>.<ext>". When a file with
// the same content hash already exists the write is skipped, so downstream
// watchers see no modification. Older hashes for the same unit are
// removed, and the manifest is regenerated after every call.
func (w *Writer) Write(mod *Module) (Result, error) {
	sum := sha256.Sum256([]byte(mod.Text))
	hash := hex.EncodeToString(sum[:])[:hashLen]
	name := fmt.Sprintf("%s_%s%s", w.prefix, hash, w.ext)
	unitDir := filepath.Join(w.dir, mod.Unit)
	path := filepath.Join(unitDir, name)
	res := Result{Path: mod.Unit + "/" + name, Hash: hash}

	if _, err := os.Stat(path); err == nil {
		res.Skipped = true
		metrics.RecordArtifactSkipped()
		w.log.Debug("artifact unchanged", "unit", mod.Unit, "hash", hash)
	} else {
		if err := os.MkdirAll(unitDir, 0755); err != nil {
			return res, errors.New("E130").WithUnit(mod.Unit).Wrap(err)
		}
		if err := os.WriteFile(path, []byte(mod.Text), 0644); err != nil {
			return res, errors.New("E130").WithUnit(mod.Unit).Wrap(err)
		}
		metrics.RecordArtifactWritten()
		w.log.Info("artifact written", "unit", mod.Unit, "path", res.Path)
	}

	removed, err := w.removeStale(unitDir, name)
	if err != nil {
		return res, err
	}
	res.Removed = removed

	w.manifest[mod.Unit] = res.Path
	if err := w.writeManifest(); err != nil {
		return res, err
	}

	if w.sink != nil && !res.Skipped {
		if err := w.sink.Publish(mod.Unit, res.Path, []byte(mod.Text)); err != nil {
			return res, errors.New("E132").WithUnit(mod.Unit).Wrap(err)
		}
	}
	return res, nil
}

// removeStale deletes same-unit artifacts whose hash no longer matches.
func (w *Writer) removeStale(unitDir, keep string) ([]string, error) {
	entries, err := os.ReadDir(unitDir)
	if err != nil {
		return nil, errors.New("E130").WithDetail(err.Error()).Wrap(err)
	}
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == keep {
			continue
		}
		if !strings.HasPrefix(name, w.prefix+"_") || !strings.HasSuffix(name, w.ext) {
			continue
		}
		if err := os.Remove(filepath.Join(unitDir, name)); err != nil {
			return removed, errors.New("E130").WithDetail(err.Error()).Wrap(err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// writeManifest rewrites manifest.json. json.MarshalIndent emits map keys
// sorted, which keeps the file diff-stable across builds.
func (w *Writer) writeManifest() error {
	data, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return errors.New("E131").Wrap(err)
	}
	data = append(data, '\n')
	path := filepath.Join(w.dir, manifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E131").Wrap(err)
	}
	if w.sink != nil {
		if err := w.sink.Publish("", manifestName, data); err != nil {
			return errors.New("E132").Wrap(err)
		}
	}
	return nil
}

// Manifest returns a copy of the current unit → artifact path mapping.
func (w *Writer) Manifest() map[string]string {
	out := make(map[string]string, len(w.manifest))
	for k, v := range w.manifest {
		out[k] = v
	}
	return out
}

// Clean removes the entire artifact directory.
func (w *Writer) Clean() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return errors.New("E130").WithDetail(err.Error()).Wrap(err)
	}
	return nil
}
