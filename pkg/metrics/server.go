package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/civicweave/civicdata/pkg/logger"
)

// serveMux builds the metrics endpoint mux: the prometheus scrape handler
// plus a small landing page for humans poking at the port.
func serveMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>civicdata metrics</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})
	return mux
}

// StartServer serves the prometheus scrape endpoint on its own port and
// returns a shutdown function for graceful termination.
func StartServer(port int) (shutdown func(context.Context) error) {
	log := logger.WithComponent("metrics-server")
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      serveMux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()

	return server.Shutdown
}
