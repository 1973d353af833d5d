package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"mapdedupe.io/internal/config"
	"mapdedupe.io/internal/engine"
	"mapdedupe.io/internal/locator"
	"mapdedupe.io/internal/persistence/savefile"
	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/tagtree"
)

const usage = `usage: mapdedupe <command> [flags] [args]

commands:
  worlds              list worlds under worlds_dir
  list                list every map record
  show [-refs] <ids>  print map records
  dupes               list duplicate groups
  search [ids]        list references per map
  lost                list maps no item references
  merge [ids]         merge duplicate groups (dry run unless -commit)
  db <query>          query the run index: runs|maps|refs|groups|changes
  serve               analyze a world and serve the report to observers
  backups             list backups made before committed merges
`

type command func(ctx context.Context, args []string, stdout io.Writer) error

var commands = map[string]command{
	"worlds":  worldsCmd,
	"list":    listCmd,
	"show":    showCmd,
	"dupes":   dupesCmd,
	"search":  searchCmd,
	"lost":    lostCmd,
	"merge":   mergeCmd,
	"db":      dbCmd,
	"serve":   serveCmd,
	"backups": backupsCmd,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		switch {
		case errors.Is(err, errUsage), errors.Is(err, protocol.ErrWorldNotFound):
			os.Exit(2)
		case errors.Is(err, context.Canceled):
			os.Exit(130)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// runFlags are shared by every command that opens a world.
type runFlags struct {
	configPath string
	envFile    string
	world      string
	jsonOut    bool
	verbose    bool
	workers    int
	explorer   bool
}

func bindRunFlags(fs *flag.FlagSet) *runFlags {
	f := &runFlags{}
	fs.StringVar(&f.configPath, "config", "", "path to mapdedupe.yaml (optional)")
	fs.StringVar(&f.envFile, "env", ".env", "dotenv file with MAPDEDUPE_* overrides (ignored if missing)")
	fs.StringVar(&f.world, "world", "", "world name, directory or save file (default: default_world)")
	fs.BoolVar(&f.jsonOut, "json", false, "print JSON")
	fs.BoolVar(&f.verbose, "v", false, "log progress to stderr")
	fs.IntVar(&f.workers, "workers", 0, "scan/merge workers (overrides config)")
	fs.BoolVar(&f.explorer, "separate_explorer", false, "key explorer maps apart from player maps (overrides config when set)")
	return f
}

func (f *runFlags) config() (config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return cfg, err
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if f.explorer {
		cfg.SeparateExplorerMaps = true
	}
	return cfg, nil
}

func (f *runFlags) logger() *log.Logger {
	if !f.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "[mapdedupe] ", log.LstdFlags|log.Lmicroseconds)
}

// session is an opened world with its analysis.
type session struct {
	cfg    config.Config
	world  locator.World
	tree   *tagtree.Tree
	an     *engine.Analysis
	logger *log.Logger
}

// load resolves and reads the world without analyzing it.
func (f *runFlags) load() (*session, error) {
	cfg, err := f.config()
	if err != nil {
		return nil, err
	}
	w, err := locator.Resolve(cfg, f.world)
	if err != nil {
		return nil, err
	}
	_, tree, err := savefile.Read(w.Save)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, world: w, tree: tree, logger: f.logger()}, nil
}

func (f *runFlags) open(ctx context.Context, pin []int) (*session, error) {
	s, err := f.load()
	if err != nil {
		return nil, err
	}
	cfg, logger := s.cfg, s.logger
	an, err := engine.Analyze(ctx, s.world.Name, s.tree, engine.Options{
		Workers:             cfg.Workers,
		SeparateExplorer:    cfg.SeparateExplorerMaps,
		PreferReferenced:    cfg.PreferReferenced,
		Pin:                 pin,
		MaxConflictWarnings: cfg.MaxConflictWarnings,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}
	s.an = an
	return s, nil
}

// parseIDs accepts ids as separate args and/or comma separated lists.
func parseIDs(args []string) ([]int, error) {
	var out []int
	for _, a := range args {
		for _, p := range strings.Split(a, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			id, err := strconv.Atoi(p)
			if err != nil || id < 0 {
				return nil, fmt.Errorf("%w: bad map id %q", errUsage, p)
			}
			out = append(out, id)
		}
	}
	return out, nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func printWarnings(w io.Writer, rep protocol.Report) {
	c := rep.Warnings
	if c.Total() == 0 {
		return
	}
	fmt.Fprintf(w, "warnings: corrupt_records=%d unreadable_chunks=%d pixel_conflicts=%d write_failures=%d records_kept=%d\n",
		c.CorruptRecords, c.UnreadableChunks, c.PixelConflicts, c.WriteFailures, c.RecordsKept)
	if rep.LostMayBeInaccurate {
		fmt.Fprintln(w, "note: some chunks could not be read; lost maps may be inaccurate")
	}
}
