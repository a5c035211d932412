package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analytics HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/metrics/{source}", func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		srcCfg, ok := metric.Lookup(source)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown source %q", source))
			return
		}

		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			writeError(w, http.StatusBadRequest, "client_id is required")
			return
		}
		from, to, err := parseWindow(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rows, err := env.Store.MetricRows(r.Context(), source, clientID, from, to)
		if err != nil {
			zap.L().Error("metrics query failed",
				zap.String("source", source),
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "metric store unavailable")
			return
		}

		agg := metric.Reduce(rows, srcCfg)
		writeSuccess(w, agg)
	})

	r.Get("/api/vital-signs", func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			writeError(w, http.StatusBadRequest, "client_id is required")
			return
		}
		from, to, err := parseWindow(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		bundle, err := collectBundle(r.Context(), env.Store, clientID, from, to)
		if err != nil {
			zap.L().Error("vital signs aggregation failed",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "metric store unavailable")
			return
		}

		score, err := env.Scorer.Compute(r.Context(), clientID, sourceScores(bundle))
		if err != nil {
			zap.L().Error("vital signs scoring failed",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "score store unavailable")
			return
		}

		writeSuccess(w, score)
	})

	r.Post("/api/insights", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ClientID     string `json:"client_id"`
			Start        string `json:"start"`
			End          string `json:"end"`
			ForceRefresh bool   `json:"force_refresh"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ClientID == "" {
			writeError(w, http.StatusBadRequest, "client_id is required")
			return
		}
		from, to, err := parseWindow(req.Start, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		bundle, err := collectBundle(r.Context(), env.Store, req.ClientID, from, to)
		if err != nil {
			zap.L().Error("insight aggregation failed",
				zap.String("client_id", req.ClientID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "metric store unavailable")
			return
		}

		report, err := env.Generator.Generate(r.Context(), req.ClientID, bundle, req.ForceRefresh)
		if err != nil {
			zap.L().Error("insight generation failed",
				zap.String("client_id", req.ClientID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "report store unavailable")
			return
		}

		writeSuccess(w, report)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
