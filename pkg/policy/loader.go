package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir loads every .rego file in dir as an enabled rule named after its
// file. Missing directories are not an error, so a default config can point
// at a policies/ directory that may not exist yet.
func (g *Gate) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading policy directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading policy %s: %w", path, err)
		}
		rule := Rule{
			Name:    strings.TrimSuffix(entry.Name(), ".rego"),
			Enabled: true,
			Rego:    string(source),
		}
		if err := g.Load(rule); err != nil {
			return err
		}
		g.log.Debugf("loaded policy rule %s from %s", rule.Name, path)
	}
	return nil
}
