package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "erp_query_fetch_duration_seconds",
		Help: "Duration of query fetches including retries",
	}, []string{"resource"})
	QueryFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_query_fetch_errors_total",
		Help: "Query fetches that settled with an error",
	}, []string{"resource"})
	QueryCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "erp_query_cache_hits_total",
		Help: "Reads served from a fresh cache entry",
	})
	QueryCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "erp_query_cache_misses_total",
		Help: "Reads that needed a fetch",
	})
	QueryDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "erp_query_deduplicated_total",
		Help: "Reads that joined an in-flight fetch",
	})
	QueryInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_query_invalidations_total",
		Help: "Prefix invalidations by origin",
	}, []string{"origin"})
	PersisterErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_query_persister_errors_total",
		Help: "Persister failures by operation",
	}, []string{"op"})
	APIClientDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "erp_apiclient_request_duration_seconds",
		Help: "ERP API request duration seen by the client",
	}, []string{"method", "code"})
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_api_requests_total",
		Help: "Requests served by the reference ERP API",
	}, []string{"method", "code"})
)

func init() {
	prometheus.MustRegister(
		QueryFetchDuration,
		QueryFetchErrors,
		QueryCacheHits,
		QueryCacheMisses,
		QueryDeduplicated,
		QueryInvalidations,
		PersisterErrors,
		APIClientDuration,
		APIRequests,
	)
}

func StartMetricsServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
