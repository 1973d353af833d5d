package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/refscan"
)

// FileName is the index database inside the data directory.
const FileName = "index.sqlite"

// SQLiteIndex stores finished runs for later querying. All writes go
// through one goroutine.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	written atomic.Uint64
	failed  atomic.Uint64
}

type req struct {
	report protocol.Report
	refs   []refscan.Reference
	done   chan error
}

type Stats struct {
	RunsWritten uint64
	RunsFailed  uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			world TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			dry_run INTEGER NOT NULL,
			total INTEGER NOT NULL,
			unique_maps INTEGER NOT NULL,
			groups_count INTEGER NOT NULL,
			lost INTEGER NOT NULL,
			refs INTEGER NOT NULL,
			warnings INTEGER NOT NULL,
			changed INTEGER NOT NULL,
			deleted INTEGER NOT NULL,
			report_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_world ON runs(world, generated_at);`,
		`CREATE TABLE IF NOT EXISTS maps (
			run_id TEXT NOT NULL,
			map_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			dimension TEXT NOT NULL,
			scale INTEGER NOT NULL,
			center_x INTEGER NOT NULL,
			center_z INTEGER NOT NULL,
			explored INTEGER NOT NULL,
			refs INTEGER NOT NULL,
			lost INTEGER NOT NULL,
			PRIMARY KEY (run_id, map_id)
		);`,
		`CREATE TABLE IF NOT EXISTS refs (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			map_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			dimension TEXT NOT NULL,
			path TEXT NOT NULL,
			location TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_refs_map ON refs(run_id, map_id);`,
		`CREATE TABLE IF NOT EXISTS map_groups (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			dimension TEXT NOT NULL,
			scale INTEGER NOT NULL,
			center_x INTEGER NOT NULL,
			center_z INTEGER NOT NULL,
			canonical INTEGER NOT NULL,
			members_json TEXT NOT NULL,
			conflicts INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS changes (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			from_map INTEGER NOT NULL,
			to_map INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			error TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRun stores a finished run and waits until it is committed.
func (s *SQLiteIndex) RecordRun(ctx context.Context, rep protocol.Report, refs []refscan.Reference) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	if rep.RunID == "" {
		return fmt.Errorf("record run: empty run id")
	}
	r := req{report: rep, refs: refs, done: make(chan error, 1)}
	select {
	case s.ch <- r:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{RunsWritten: s.written.Load(), RunsFailed: s.failed.Load()}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	for r := range s.ch {
		err := s.writeRun(ctx, r.report, r.refs)
		if err != nil {
			s.failed.Add(1)
		} else {
			s.written.Add(1)
		}
		r.done <- err
	}
}

func (s *SQLiteIndex) writeRun(ctx context.Context, rep protocol.Report, refs []refscan.Reference) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	raw, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	dryRun, changed, deleted := true, 0, 0
	if rep.Rewrite != nil {
		dryRun = rep.Rewrite.DryRun
		changed = rep.Rewrite.Changed
		deleted = len(rep.Rewrite.Deleted)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO runs(run_id,world,generated_at,dry_run,total,unique_maps,groups_count,lost,refs,warnings,changed,deleted,report_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.RunID, rep.World, rep.GeneratedAt, boolInt(dryRun),
		rep.Counts.Total, rep.Counts.Unique, rep.Counts.Groups, rep.Counts.Lost, rep.Counts.References,
		rep.Warnings.Total(), changed, deleted, string(raw),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	insertMap, err := tx.Prepare(`INSERT OR REPLACE INTO maps(run_id,map_id,type,dimension,scale,center_x,center_z,explored,refs,lost) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertMap.Close()
	for _, m := range rep.Maps {
		if _, err := insertMap.Exec(rep.RunID, m.ID, m.Type, m.Dimension, m.Scale, m.Center[0], m.Center[1], m.Explored, m.References, boolInt(m.Lost)); err != nil {
			return fmt.Errorf("insert map %d: %w", m.ID, err)
		}
	}

	insertRef, err := tx.Prepare(`INSERT OR REPLACE INTO refs(run_id,seq,map_id,source,dimension,path,location) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertRef.Close()
	for i, ref := range refs {
		loc := ref.Location
		if _, err := insertRef.Exec(rep.RunID, i, ref.MapID, string(loc.Source), loc.Dimension, loc.Path.String(), loc.String()); err != nil {
			return fmt.Errorf("insert ref %s: %w", loc.Path, err)
		}
	}

	insertGroup, err := tx.Prepare(`INSERT OR REPLACE INTO map_groups(run_id,seq,dimension,scale,center_x,center_z,canonical,members_json,conflicts) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertGroup.Close()
	for i, g := range rep.Groups {
		members, _ := json.Marshal(g.Members)
		if _, err := insertGroup.Exec(rep.RunID, i, g.Dimension, g.Scale, g.Center[0], g.Center[1], g.Canonical, string(members), g.Conflicts); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
	}

	if rep.Rewrite != nil {
		insertChange, err := tx.Prepare(`INSERT OR REPLACE INTO changes(run_id,seq,path,from_map,to_map,applied,error) VALUES(?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer insertChange.Close()
		for i, c := range rep.Rewrite.Changes {
			var errText any
			if c.Error != "" {
				errText = c.Error
			}
			if _, err := insertChange.Exec(rep.RunID, i, c.Path, c.From, c.To, boolInt(c.Applied), errText); err != nil {
				return fmt.Errorf("insert change: %w", err)
			}
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
