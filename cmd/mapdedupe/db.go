package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"mapdedupe.io/internal/persistence/indexdb"
)

func dbCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("db")
	rf := bindRunFlags(fs)
	dbPath := fs.String("db", "", "sqlite db path (default: <data_dir>/index.sqlite)")
	runID := fs.String("run", "", "run id (default: latest run, optionally of -world)")
	mapID := fs.Int("map", -1, "map id filter (refs, changes)")
	limit := fs.Int("limit", 20, "result limit")
	if err := parse(fs, args); err != nil {
		return err
	}

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		cfg, err := rf.config()
		if err != nil {
			return err
		}
		path = filepath.Join(cfg.DataDir, indexdb.FileName)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	if q == "runs" {
		return queryRuns(ctx, db, stdout, rf.world, *limit)
	}

	run := strings.TrimSpace(*runID)
	if run == "" {
		run, err = latestRun(ctx, db, rf.world)
		if err != nil {
			return fmt.Errorf("latest run: %w", err)
		}
		if run == "" {
			return fmt.Errorf("no runs recorded")
		}
	}

	switch q {
	case "maps":
		return queryRows(ctx, db, stdout,
			`SELECT map_id,type,dimension,scale,center_x,center_z,explored,refs,lost FROM maps WHERE run_id=? ORDER BY map_id`,
			[]string{"map_id", "type", "dimension", "scale", "center_x", "center_z", "explored", "refs", "lost"}, run)
	case "refs":
		if *mapID >= 0 {
			return queryRows(ctx, db, stdout,
				`SELECT map_id,source,dimension,path,location FROM refs WHERE run_id=? AND map_id=? ORDER BY seq`,
				[]string{"map_id", "source", "dimension", "path", "location"}, run, *mapID)
		}
		return queryRows(ctx, db, stdout,
			`SELECT map_id,source,dimension,path,location FROM refs WHERE run_id=? ORDER BY seq`,
			[]string{"map_id", "source", "dimension", "path", "location"}, run)
	case "groups":
		return queryRows(ctx, db, stdout,
			`SELECT dimension,scale,center_x,center_z,canonical,members_json,conflicts FROM map_groups WHERE run_id=? ORDER BY seq`,
			[]string{"dimension", "scale", "center_x", "center_z", "canonical", "members", "conflicts"}, run)
	case "changes":
		if *mapID >= 0 {
			return queryRows(ctx, db, stdout,
				`SELECT path,from_map,to_map,applied,error FROM changes WHERE run_id=? AND (from_map=? OR to_map=?) ORDER BY seq`,
				[]string{"path", "from", "to", "applied", "error"}, run, *mapID, *mapID)
		}
		return queryRows(ctx, db, stdout,
			`SELECT path,from_map,to_map,applied,error FROM changes WHERE run_id=? ORDER BY seq`,
			[]string{"path", "from", "to", "applied", "error"}, run)
	}
	return fmt.Errorf("%w: unknown query %q (runs|maps|refs|groups|changes)", errUsage, q)
}

func queryRuns(ctx context.Context, db *sql.DB, stdout io.Writer, world string, limit int) error {
	cols := []string{"run_id", "world", "generated_at", "dry_run", "total", "unique", "groups", "lost", "refs", "warnings", "changed", "deleted"}
	const sel = `SELECT run_id,world,generated_at,dry_run,total,unique_maps,groups_count,lost,refs,warnings,changed,deleted FROM runs`
	if world != "" {
		return queryRows(ctx, db, stdout, sel+` WHERE world=? ORDER BY generated_at DESC LIMIT ?`, cols, world, limit)
	}
	return queryRows(ctx, db, stdout, sel+` ORDER BY generated_at DESC LIMIT ?`, cols, limit)
}

func latestRun(ctx context.Context, db *sql.DB, world string) (string, error) {
	var (
		id  string
		row *sql.Row
	)
	if world != "" {
		row = db.QueryRowContext(ctx, `SELECT run_id FROM runs WHERE world=? ORDER BY generated_at DESC LIMIT 1`, world)
	} else {
		row = db.QueryRowContext(ctx, `SELECT run_id FROM runs ORDER BY generated_at DESC LIMIT 1`)
	}
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// queryRows prints one JSON object per row, keyed by cols.
func queryRows(ctx context.Context, db *sql.DB, stdout io.Writer, query string, cols []string, args ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		out := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				out[c] = string(b)
				continue
			}
			out[c] = vals[i]
		}
		printJSON(stdout, out)
	}
	return rows.Err()
}
