// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus counters for the map/reduce driver and
// an optional HTTP endpoint to scrape them, mirroring the way the indexing
// command exposes its own /metrics endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChunksProcessed counts chunks that received a real (non-provisional)
	// result, labeled by terminal status.
	ChunksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscan_chunks_processed_total",
		Help: "Chunks that received a completed, partial, or failed result.",
	}, []string{"status"})

	// Batches counts map-phase batches, labeled by outcome.
	Batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscan_batches_total",
		Help: "Map-phase batches processed, labeled by result.",
	}, []string{"result"})

	// Escalations counts chunks re-dispatched at a higher model tier.
	Escalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepscan_escalations_total",
		Help: "Chunks escalated to a higher-capability model tier.",
	})

	// Cancellations counts cancellation events, labeled by kind.
	Cancellations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscan_cancellations_total",
		Help: "Cancellation requests observed, labeled by graceful or forced.",
	}, []string{"kind"})
)

// Server wraps an HTTP server exposing /metrics, started only when the
// caller opts in via --serve-metrics.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics server bound to addr (e.g. ":9090"). It does
// not start listening until Start is called.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start runs the metrics server in the background; call Shutdown to stop it.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
