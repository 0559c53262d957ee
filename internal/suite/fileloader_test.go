package suite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, root, name, body string) {
	t.Helper()
	full := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

const fixtureSuite = "suite_name: demo\nsteps:\n  - name: a\n    request:\n      method: GET\n      url: /a\n"

func TestFileLoaderLoadSuite(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "demo.yaml", fixtureSuite)

	loader := NewFileLoader(root)
	s, err := loader.LoadSuite(filepath.Join(root, "demo.yaml"))
	if err != nil {
		t.Fatalf("LoadSuite: %v", err)
	}
	if s.Name != "demo" {
		t.Fatalf("got suite name %q", s.Name)
	}
}

func TestFileLoaderLoadVersion(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "demo.yaml", fixtureSuite)

	loader := NewFileLoader(root)
	data, path, err := loader.LoadVersion(context.Background(), "demo", "")
	if err != nil {
		t.Fatalf("LoadVersion: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty suite bytes")
	}
	if path != filepath.Join(root, "demo.yaml") {
		t.Fatalf("unexpected resolved path: %s", path)
	}
}

func TestFileLoaderLoadVersionWithExplicitVersion(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "demo/v2.yaml", fixtureSuite)

	loader := NewFileLoader(root)
	_, path, err := loader.LoadVersion(context.Background(), "demo", "v2")
	if err != nil {
		t.Fatalf("LoadVersion: %v", err)
	}
	if path != filepath.Join(root, "demo", "v2.yaml") {
		t.Fatalf("unexpected resolved path: %s", path)
	}
}
