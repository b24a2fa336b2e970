// Package app wires the shared dependencies of the API server.
package app

import (
	"log/slog"
	"sync"

	"wayfarer.opentransit.org/internal/appconf"
	"wayfarer.opentransit.org/internal/clock"
	"wayfarer.opentransit.org/internal/proximity"
	"wayfarer.opentransit.org/internal/realtime"
	"wayfarer.opentransit.org/internal/routing"
	"wayfarer.opentransit.org/internal/transit"
)

// Application holds the long-lived dependencies handlers share. Derived
// structures (router, spatial index) follow the transit store's committed
// snapshot and are rebuilt lazily when its version moves.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Transit *transit.Store
	Metrics *realtime.Metrics

	// Ingestor applies trip updates; the HTTP push endpoint and the feed
	// pollers share it.
	Ingestor *realtime.Ingestor

	mu     sync.Mutex
	engine *routing.Engine
	index  *proximity.Index
}

// Router returns a search engine bound to the current snapshot,
// rebuilding pattern tables only when the snapshot version changed.
func (a *Application) Router() *routing.Engine {
	snap := a.Transit.Current()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine == nil {
		a.engine = routing.NewEngine(snap)
	} else {
		a.engine.Rebuild(snap)
	}
	return a.engine
}

// NearbyIndex returns the spatial stop index for the current snapshot.
func (a *Application) NearbyIndex() *proximity.Index {
	snap := a.Transit.Current()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index == nil || a.index.Version() != snap.Version {
		a.index = proximity.NewIndex(snap.Graph, snap.Variants, snap.Version)
	}
	return a.index
}
