package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mapdedupe.io/internal/engine"
	"mapdedupe.io/internal/locator"
	"mapdedupe.io/internal/persistence/savefile"
	"mapdedupe.io/internal/transport/observer"
)

func serveCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("serve")
	rf := bindRunFlags(fs)
	addr := fs.String("addr", "127.0.0.1:8095", "http listen address")
	every := fs.Duration("rescan", 0, "rescan interval (0 = analyze once)")
	if err := parse(fs, args); err != nil {
		return err
	}
	rf.verbose = true
	logger := rf.logger()

	cfg, err := rf.config()
	if err != nil {
		return err
	}
	w, err := locator.Resolve(cfg, rf.world)
	if err != nil {
		return err
	}

	obs := observer.NewServer(logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/report", obs.ReportHandler())
	mux.HandleFunc("/ws", obs.WSHandler())
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	analyze := func() {
		_, tree, err := savefile.Read(w.Save)
		if err != nil {
			logger.Printf("read save: %v", err)
			return
		}
		runID := uuid.NewString()
		an, err := engine.Analyze(ctx, w.Name, tree, engine.Options{
			RunID:               runID,
			Workers:             cfg.Workers,
			SeparateExplorer:    cfg.SeparateExplorerMaps,
			PreferReferenced:    cfg.PreferReferenced,
			MaxConflictWarnings: cfg.MaxConflictWarnings,
			Logger:              logger,
			OnProgress:          obs.Progress(runID, 64),
		})
		if err != nil {
			logger.Printf("analyze: %v", err)
			return
		}
		rep := an.Report(nil)
		if err := obs.PublishReport(rep); err != nil {
			logger.Printf("publish: %v", err)
		}
		s := &session{cfg: cfg, world: w, tree: tree, an: an, logger: logger}
		recordRun(ctx, s, rep)
	}

	go func() {
		analyze()
		if *every <= 0 {
			return
		}
		t := time.NewTicker(*every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				analyze()
			}
		}
	}()

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	fmt.Fprintf(stdout, "serving %s on http://%s/report and ws://%s/ws\n", w.Name, *addr, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
