package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/certeq/equipment-certification-backend/common"
	"github.com/certeq/equipment-certification-backend/metrics"
)

type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
}

// New creates the API server around a configured handler. When
// cfg.MetricsAddr is set, a Prometheus endpoint is served on a separate
// listener.
func New(cfg *HTTPServerConfig, handler *Handler, m *metrics.Metrics) (srv *Server, err error) {
	srv = &Server{
		cfg:     cfg,
		log:     cfg.Log,
		srv:     nil,
		handler: handler,
	}
	if cfg.MetricsAddr != "" {
		if m == nil {
			m = metrics.New(common.PackageName)
		}
		srv.metricsSrv = metrics.NewServer(m, cfg.MetricsAddr)
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Route("/api", func(r chi.Router) {
		r.Use(srv.httpLogger)

		// Identity
		r.Post("/identity/manufacturers", srv.handler.HandleRegisterManufacturer)
		r.Post("/identity/cabs", srv.handler.HandleRegisterCAB)
		r.Post("/identity/cabs/details", srv.handler.HandleUpdateCABDetails)
		r.Post("/identity/cabs/accredit", srv.handler.HandleAccreditCAB)
		r.Get("/identity/cabs", srv.handler.HandleListCABs)
		r.Get("/identity/cabs/{addr}", srv.handler.HandleCABDetails)

		// Equipment catalog
		r.Post("/equipment", srv.handler.HandleRegisterEquipment)
		r.Get("/equipment", srv.handler.HandleListEquipment)
		r.Get("/equipment/{id}", srv.handler.HandleEquipmentDetails)
		r.Get("/equipment/{id}/winner", srv.handler.HandleWinningCAB)

		// Auction market and settlement
		r.Post("/auctions", srv.handler.HandleCreateAuction)
		r.Get("/auctions", srv.handler.HandleListOpenAuctions)
		r.Get("/auctions/{id}", srv.handler.HandleAuctionDetails)
		r.Post("/auctions/{id}/bids", srv.handler.HandleSubmitBid)
		r.Get("/auctions/{id}/bids/{bid_id}", srv.handler.HandleBidDetails)
		r.Post("/auctions/{id}/select", srv.handler.HandleSelectBestBid)
		r.Get("/balances/{addr}", srv.handler.HandleBalance)

		// Accreditation ledger
		r.Post("/accreditations", srv.handler.HandleSubmitTestResults)
		r.Get("/accreditations/pending", srv.handler.HandleListPendingAccreditations)
		r.Get("/accreditations/{id}", srv.handler.HandleTestResultDetails)
		r.Post("/accreditations/{id}/decision", srv.handler.HandleAccreditationDecision)
		r.Post("/accreditations/{id}/update", srv.handler.HandleUpdateAccreditation)
		r.Post("/accreditations/{id}/confirm", srv.handler.HandleConfirmUpdatedAccreditation)
		r.Post("/accreditations/{id}/revoke", srv.handler.HandleRevokeAccreditation)

		// Certification ledger
		r.Post("/certifications", srv.handler.HandleRequestCertification)
		r.Get("/certifications/pending", srv.handler.HandleListPendingCertifications)
		r.Get("/certifications/{id}", srv.handler.HandleCertificationDetails)
		r.Post("/certifications/{id}/decision", srv.handler.HandleCertificationDecision)
		r.Post("/certifications/{id}/update", srv.handler.HandleUpdateCertification)
		r.Post("/certifications/{id}/confirm", srv.handler.HandleConfirmUpdatedCertification)
		r.Post("/certifications/{id}/audit", srv.handler.HandleSubmitAuditReport)
		r.Get("/certifications/{id}/audit", srv.handler.HandleAuditLog)
		r.Post("/certifications/{id}/revoke", srv.handler.HandleRevokeCertification)

		// Document storage boundary
		r.Post("/documents/{kind}", srv.handler.HandleStoreDocument)
		r.Get("/documents/{kind}/{id}", srv.handler.HandleFetchDocument)
	})

	// Health and diagnostic endpoints
	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already draining"}`))
		return
	}

	srv.log.Info("Server marked as not ready")

	// Let load balancers observe the readiness change before shutdown.
	go func() {
		time.Sleep(srv.cfg.DrainDuration)
		srv.log.Info("Drain period completed")
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"draining"}`))
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already ready"}`))
		return
	}

	srv.log.Info("Server marked as ready")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) RunInBackground() {
	// metrics
	if srv.metricsSrv != nil {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			err := srv.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	// api
	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

func (srv *Server) Shutdown() {
	// api
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}

	// metrics
	if srv.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()

		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
}
