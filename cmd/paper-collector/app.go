// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pdiddy/paper-collector/internal/acquire"
	"github.com/pdiddy/paper-collector/internal/pipeline"
	"github.com/pdiddy/paper-collector/internal/search"
	"github.com/pdiddy/paper-collector/internal/store"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// app holds the components shared by the commands.
type app struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
}

// openStore opens the configured paper database.
func openStore() (*store.Store, error) {
	return store.Open(cfg.Store.Path)
}

// newApp opens the store and wires the adapters, the acquirer and the
// pipeline from c.
func newApp(c types.Config) (*app, error) {
	st, err := store.Open(c.Store.Path)
	if err != nil {
		return nil, err
	}

	searchClient := &http.Client{Timeout: c.Search.Timeout}
	adapters := []search.Adapter{
		search.NewArxivAdapter(searchClient, c.Search, logger),
		search.NewPubMedAdapter(searchClient, c.Search, logger),
	}

	acq := c.Acquisition
	acqClient := &http.Client{Timeout: acq.Timeout}
	dl := acquire.NewDownloader(acqClient, acquire.DownloadConfig{
		Dir:        acq.PapersDir,
		MaxBytes:   acq.MaxBytes,
		UserAgent:  acq.UserAgent,
		MaxRetries: acq.MaxRetries,
	}, logger)
	acquirer := acquire.NewAcquirer(
		acquire.NewResolver(acqClient, acq, logger),
		dl,
		acquire.NewInspector(logger),
		acq.MaxPages,
		logger,
	)

	return &app{
		store:    st,
		pipeline: pipeline.New(st, adapters, acquirer, acq, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runGroup names the document folder of a collection run.
func runGroup(t time.Time) string {
	return t.Format("20060102_1504")
}
