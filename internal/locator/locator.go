package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mapdedupe.io/internal/config"
	"mapdedupe.io/internal/persistence/savefile"
	"mapdedupe.io/internal/protocol"
)

// World is a resolved world save.
type World struct {
	Name string
	Dir  string
	Save string
}

// Resolve accepts a save file, a world directory or a world name under
// cfg.WorldsDir. An empty name falls back to cfg.DefaultWorld.
func Resolve(cfg config.Config, nameOrPath string) (World, error) {
	q := strings.TrimSpace(nameOrPath)
	if q == "" {
		q = cfg.DefaultWorld
	}
	if q == "" {
		return World{}, fmt.Errorf("%w: no world given and no default_world configured", protocol.ErrWorldNotFound)
	}

	candidates := []string{q}
	if !filepath.IsAbs(q) && cfg.WorldsDir != "" {
		candidates = append(candidates, filepath.Join(cfg.WorldsDir, q))
	}
	for _, c := range candidates {
		fi, err := os.Stat(c)
		if err != nil {
			continue
		}
		if !fi.IsDir() {
			dir := filepath.Dir(c)
			return World{Name: filepath.Base(dir), Dir: dir, Save: c}, nil
		}
		save := filepath.Join(c, savefile.FileName)
		if st, err := os.Stat(save); err == nil && !st.IsDir() {
			return World{Name: filepath.Base(c), Dir: c, Save: save}, nil
		}
	}
	return World{}, fmt.Errorf("%w: %s", protocol.ErrWorldNotFound, q)
}

// List returns the names of worlds under cfg.WorldsDir that hold a save.
func List(cfg config.Config) ([]string, error) {
	ents, err := os.ReadDir(cfg.WorldsDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(cfg.WorldsDir, e.Name(), savefile.FileName)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
