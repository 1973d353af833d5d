package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"mapdedupe.io/internal/locator"
	"mapdedupe.io/internal/persistence/backup"
	"mapdedupe.io/internal/persistence/savefile"
)

type backupOut struct {
	Dir  string          `json:"dir"`
	Meta backup.Meta     `json:"meta"`
	Save savefile.Header `json:"save"`
}

func backupsCmd(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("backups")
	rf := bindRunFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := rf.config()
	if err != nil {
		return err
	}
	w, err := locator.Resolve(cfg, rf.world)
	if err != nil {
		return err
	}
	dirs, err := backup.List(w.Dir)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		meta, err := backup.ReadMeta(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		name := meta.Save
		if name == "" {
			name = savefile.FileName
		}
		h, err := savefile.ReadHeader(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if rf.jsonOut {
			printJSON(stdout, backupOut{Dir: dir, Meta: meta, Save: h})
			continue
		}
		fmt.Fprintf(stdout, "%s  run=%s created=%s groups=%d superseded=%v\n",
			filepath.Base(dir), meta.RunID, meta.CreatedAt, meta.Groups, meta.Superseded)
	}
	if !rf.jsonOut {
		fmt.Fprintf(stdout, "%d backups\n", len(dirs))
	}
	return nil
}
