package suite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// FileLoader loads Flow Suite Documents from a directory tree on disk — the
// reference, explicitly out-of-core loader spec §1 assumes hands the engine
// an already-parsed document. It satisfies both the Cross-Suite Call
// Resolver's SuiteLoader contract (LoadSuite by file path, for `call` step
// targets) and the Queue Worker's VersionLoader contract (LoadVersion by
// suite ref + version, for the initial Run dispatch).
type FileLoader struct {
	Root string
}

func NewFileLoader(root string) FileLoader { return FileLoader{Root: root} }

// LoadSuite reads and parses the suite document at path, used as given
// (Root is not applied), to resolve `call` step targets.
func (f FileLoader) LoadSuite(path string) (Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, err
	}
	return Load(data)
}

// LoadVersion resolves suiteRef/versionRef to a file under Root and returns
// its raw bytes plus the resolved path (the path a subsequent `call` step
// resolves relative to).
func (f FileLoader) LoadVersion(ctx context.Context, suiteRef, versionRef string) ([]byte, string, error) {
	path := f.resolvePath(suiteRef, versionRef)
	data, err := os.ReadFile(path)
	return data, path, err
}

func (f FileLoader) resolvePath(suiteRef, versionRef string) string {
	name := suiteRef
	if versionRef != "" && versionRef != suiteRef {
		name = filepath.Join(suiteRef, versionRef)
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != ".yaml" && ext != ".yml" {
		name += ".yaml"
	}
	return filepath.Join(f.Root, name)
}
