package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
)

// Script is one migration unit, identified by its file name.
type Script struct {
	Name     string
	Contents string
}

// LoadScripts reads every .sql file directly inside dir, sorted by name.
func LoadScripts(dir string) ([]Script, error) {
	return LoadScriptsFS(os.DirFS(dir), ".")
}

// LoadScriptsFS is LoadScripts over an fs.FS.
func LoadScriptsFS(fsys fs.FS, dir string) ([]Script, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	var scripts []Script
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ".sql") {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", e.Name(), err)
		}
		scripts = append(scripts, Script{Name: e.Name(), Contents: string(b)})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })
	return scripts, nil
}

// HasScripts reports whether dir contains at least one .sql file. A missing
// directory has none.
func HasScripts(dir string) (bool, error) {
	scripts, err := LoadScripts(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(scripts) > 0, nil
}

// pending returns the scripts not yet in the journal, keeping script order.
func pending(scripts []Script, applied []string) []Script {
	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}
	var out []Script
	for _, s := range scripts {
		if _, ok := done[s.Name]; !ok {
			out = append(out, s)
		}
	}
	return out
}

var batchSeparator = regexp.MustCompile(`(?im)^[ \t]*GO[ \t]*;?[ \t]*$`)

// splitBatches splits a T-SQL script on GO separator lines.
func splitBatches(contents string) []string {
	var out []string
	for _, b := range batchSeparator.Split(contents, -1) {
		if strings.TrimSpace(b) != "" {
			out = append(out, b)
		}
	}
	return out
}
