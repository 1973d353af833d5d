package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type Meta struct {
	RunID      string `json:"run_id"`
	World      string `json:"world"`
	Save       string `json:"save"`
	Source     string `json:"source"`
	CreatedAt  string `json:"created_at"`
	Groups     int    `json:"groups"`
	Superseded []int  `json:"superseded"`
}

// Create copies the save into `worldDir/backups/<unix>-<runID>/` and
// writes meta.json next to it. It returns the backup directory.
func Create(worldDir, savePath string, meta Meta) (string, error) {
	if meta.RunID == "" {
		return "", fmt.Errorf("backup: empty run id")
	}
	now := time.Now().UTC()
	dir := filepath.Join(worldDir, "backups", fmt.Sprintf("%d-%s", now.Unix(), meta.RunID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, filepath.Base(savePath))
	if err := copyFile(savePath, dst); err != nil {
		return "", err
	}

	meta.Save = filepath.Base(dst)
	meta.Source = savePath
	meta.CreatedAt = now.Format(time.RFC3339Nano)
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

// List returns backup directories of a world, oldest first.
func List(worldDir string) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(worldDir, "backups"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() && strings.Contains(e.Name(), "-") {
			out = append(out, filepath.Join(worldDir, "backups", e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func ReadMeta(dir string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
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
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
