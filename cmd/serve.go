package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/flw-audit/internal/gps"
	"github.com/sells-group/flw-audit/internal/model"
	"github.com/sells-group/flw-audit/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type analysisRequest struct {
	Domain  string `json:"domain"`
	AsOf    string `json:"as_of"`
	GPSFrom string `json:"gps_from"`
	GPSTo   string `json:"gps_to"`
}

type progressEvent struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// buildRouter wires the HTTP API around a pipeline environment.
func buildRouter(env *pipelineEnv, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyses", handleAnalysis(env))
		r.Get("/workers/{worker}/followup", handleWorkerFollowUp(env))
		r.Get("/workers/{worker}/track", handleTrack(env))
	})

	return r
}

func handleAnalysis(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body analysisRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(body.Domain) == "" {
			body.Domain = env.DefaultDomain
		}

		req, err := buildRequest(body.Domain, body.AsOf, body.GPSFrom, body.GPSTo)
		if err == nil {
			req, err = env.Pipeline.Normalize(req)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var progress []progressEvent
		res, err := env.Pipeline.Run(r.Context(), req, func(stage, message string) {
			progress = append(progress, progressEvent{Stage: stage, Message: message})
		})
		if err != nil {
			var se *pipeline.StageError
			if errors.As(err, &se) {
				zap.L().Error("analysis failed",
					zap.String("domain", req.Domain),
					zap.String("stage", se.Stage),
					zap.Error(se.Err),
				)
				writeJSON(w, http.StatusBadGateway, map[string]any{
					"error":    se.Err.Error(),
					"stage":    se.Stage,
					"stages":   se.Stages,
					"progress": progress,
				})
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"result":   res,
			"progress": progress,
		})
	}
}

// handleWorkerFollowUp runs an analysis and returns one worker's follow-up
// summary with its beneficiary drill-down.
func handleWorkerFollowUp(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		worker := chi.URLParam(r, "worker")
		domain := r.URL.Query().Get("domain")
		if domain == "" {
			domain = env.DefaultDomain
		}

		req, err := buildRequest(domain, r.URL.Query().Get("as_of"), "", "")
		if err == nil {
			req, err = env.Pipeline.Normalize(req)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := env.Pipeline.Run(r.Context(), req, nil)
		if err != nil {
			var se *pipeline.StageError
			if errors.As(err, &se) {
				zap.L().Error("worker followup: analysis failed",
					zap.String("domain", req.Domain),
					zap.String("worker_id", worker),
					zap.String("stage", se.Stage),
					zap.Error(se.Err),
				)
				writeJSON(w, http.StatusBadGateway, map[string]any{"error": se.Err.Error(), "stage": se.Stage})
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		summary, ok := res.FollowUp.Worker(worker)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no follow-up data for worker %s", worker))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id": res.RunID,
			"as_of":  res.AsOf,
			"worker": summary,
		})
	}
}

func handleTrack(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		worker := chi.URLParam(r, "worker")
		domain := r.URL.Query().Get("domain")
		if domain == "" {
			domain = env.DefaultDomain
		}
		if domain == "" {
			writeError(w, http.StatusBadRequest, "domain is required")
			return
		}
		day, err := model.ParseDate(r.URL.Query().Get("day"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}

		visits, err := env.Fetcher.LoadVisits(r.Context(), domain)
		if err != nil {
			zap.L().Error("track: load visits failed", zap.String("domain", domain), zap.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		track, err := gps.DailyTrack(visits.Visits, worker, day)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(track)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
