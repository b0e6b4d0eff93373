package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	mod := &Module{Unit: "cart", Text: "export {};\n"}
	res, err := w.Write(mod)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Skipped {
		t.Error("first write reported Skipped")
	}
	if !strings.HasPrefix(res.Path, "cart/unit_") || !strings.HasSuffix(res.Path, ".mjs") {
		t.Errorf("Path = %q, want cart/unit_<hash>.mjs", res.Path)
	}
	if len(res.Hash) != 12 {
		t.Errorf("Hash = %q, want 12 hex chars", res.Hash)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(res.Path)))
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != mod.Text {
		t.Errorf("artifact content = %q, want %q", data, mod.Text)
	}
}

func TestWriterSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	mod := &Module{Unit: "cart", Text: "export {};\n"}
	first, err := w.Write(mod)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, filepath.FromSlash(first.Path))
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	second, err := w.Write(mod)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Skipped {
		t.Error("rewrite of identical content not skipped")
	}
	if second.Path != first.Path || second.Hash != first.Hash {
		t.Errorf("second write = %+v, want same path and hash as first", second)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("skipped write still touched the artifact file")
	}
}

func TestWriterRemovesStaleArtifacts(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	v1, err := w.Write(&Module{Unit: "cart", Text: "// v1\n"})
	if err != nil {
		t.Fatal(err)
	}
	v2, err := w.Write(&Module{Unit: "cart", Text: "// v2\n"})
	if err != nil {
		t.Fatal(err)
	}
	if v1.Hash == v2.Hash {
		t.Fatal("different content produced the same hash")
	}
	if len(v2.Removed) != 1 {
		t.Fatalf("Removed = %v, want the v1 artifact", v2.Removed)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(v1.Path))); !os.IsNotExist(err) {
		t.Error("stale v1 artifact still on disk")
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(v2.Path))); err != nil {
		t.Errorf("current artifact missing: %v", err)
	}
}

func TestWriterStaleRemovalLeavesForeignFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(&Module{Unit: "cart", Text: "// v1\n"}); err != nil {
		t.Fatal(err)
	}

	foreign := filepath.Join(dir, "cart", "README.md")
	if err := os.WriteFile(foreign, []byte("notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Write(&Module{Unit: "cart", Text: "// v2\n"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file removed: %v", err)
	}
}

func TestWriterManifest(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	cart, err := w.Write(&Module{Unit: "cart", Text: "// cart\n"})
	if err != nil {
		t.Fatal(err)
	}
	drawer, err := w.Write(&Module{Unit: "drawer", Text: "// drawer\n"})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var manifest map[string]string
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest not valid JSON: %v", err)
	}
	if manifest["cart"] != cart.Path || manifest["drawer"] != drawer.Path {
		t.Errorf("manifest = %v", manifest)
	}

	got := w.Manifest()
	if len(got) != 2 || got["cart"] != cart.Path {
		t.Errorf("Manifest() = %v", got)
	}
	// The returned map is a copy.
	got["cart"] = "tampered"
	if w.Manifest()["cart"] != cart.Path {
		t.Error("Manifest() exposed internal state")
	}
}

func TestWriterManifestSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	w1, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	cart, err := w1.Write(&Module{Unit: "cart", Text: "// cart\n"})
	if err != nil {
		t.Fatal(err)
	}

	w2, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := w2.Manifest()["cart"]; got != cart.Path {
		t.Errorf("reloaded manifest entry = %q, want %q", got, cart.Path)
	}

	// Writing a second unit must not lose the first unit's entry.
	if _, err := w2.Write(&Module{Unit: "drawer", Text: "// drawer\n"}); err != nil {
		t.Fatal(err)
	}
	m := w2.Manifest()
	if m["cart"] != cart.Path || m["drawer"] == "" {
		t.Errorf("manifest after restart = %v", m)
	}
}

func TestWriterCorruptManifestRebuilt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter with corrupt manifest: %v", err)
	}
	if len(w.Manifest()) != 0 {
		t.Errorf("Manifest() = %v, want empty after discarding corruption", w.Manifest())
	}
}

func TestWriterOptions(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, WithPrefix("mod"), WithExt("js"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := w.Write(&Module{Unit: "cart", Text: "// x\n"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Path, "cart/mod_") || !strings.HasSuffix(res.Path, ".js") {
		t.Errorf("Path = %q, want cart/mod_<hash>.js", res.Path)
	}
}

// captureSink records published artifacts.
type captureSink struct {
	published map[string][]byte
}

func (s *captureSink) Publish(unit, path string, data []byte) error {
	if s.published == nil {
		s.published = make(map[string][]byte)
	}
	s.published[path] = append([]byte(nil), data...)
	return nil
}

func TestWriterPublishesToSink(t *testing.T) {
	dir := t.TempDir()
	sink := &captureSink{}
	w, err := NewWriter(dir, WithSink(sink))
	if err != nil {
		t.Fatal(err)
	}

	mod := &Module{Unit: "cart", Text: "// cart\n"}
	res, err := w.Write(mod)
	if err != nil {
		t.Fatal(err)
	}
	if got := sink.published[res.Path]; string(got) != mod.Text {
		t.Errorf("sink artifact = %q, want %q", got, mod.Text)
	}
	if _, ok := sink.published["manifest.json"]; !ok {
		t.Error("manifest not published to sink")
	}

	// A skipped write republishes the manifest only.
	sink.published = nil
	if _, err := w.Write(mod); err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.published[res.Path]; ok {
		t.Error("skipped write republished the artifact")
	}
	if _, ok := sink.published["manifest.json"]; !ok {
		t.Error("manifest not republished on skipped write")
	}
}

func TestWriterClean(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dist")
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(&Module{Unit: "cart", Text: "// x\n"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Clean(); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Clean left the artifact directory")
	}
}
