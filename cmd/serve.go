package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/communityroots/resource-cli/internal/importer"
	"github.com/communityroots/resource-cli/internal/mapper"
	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/internal/store"
)

var servePort int

// verifyRequest is one queued webhook verification.
type verifyRequest struct {
	Source  string         `json:"source"`
	Record  map[string]any `json:"record"`
	RunType string         `json:"run_type"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server for verification requests",
	Long:  "Serves a bounded verification queue drained by a fixed worker pool. Requests beyond queue capacity are rejected with 503 so callers can back off.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initImportEnv(ctx, "serve", false)
		if err != nil {
			return err
		}
		defer env.Close()

		queue := make(chan verifyRequest, cfg.Server.QueueSize)
		mux := buildMux(queue, env.Store)

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < cfg.Server.Workers; i++ {
			g.Go(func() error {
				runVerifyWorker(gctx, queue, env.Agent, env.Store)
				return nil
			})
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Int("workers", cfg.Server.Workers),
			zap.Int("queue_size", cfg.Server.QueueSize),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		_ = g.Wait()
		return nil
	},
}

// buildMux wires the webhook routes. The queue send is non-blocking: a full
// queue answers 503 instead of stalling the caller.
func buildMux(queue chan<- verifyRequest, st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := st.GetJob(r.Context(), r.PathValue("id"))
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
				return
			}
			zap.L().Error("job lookup failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("POST /webhook/verify", func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Source == "" || len(req.Record) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source and record are required"})
			return
		}
		if req.RunType == "" {
			req.RunType = string(model.RunTypeTriggered)
		}

		select {
		case queue <- req:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		default:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "verification queue is full"})
		}
	})

	return mux
}

// runVerifyWorker drains the queue until the context is cancelled. Each
// request is normalized, verified, and its result persisted to the
// verification log.
func runVerifyWorker(ctx context.Context, queue <-chan verifyRequest, agent importer.Verifier, st store.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-queue:
			if err := handleVerifyRequest(ctx, req, agent, st); err != nil {
				zap.L().Error("webhook verification failed",
					zap.String("source", req.Source),
					zap.Error(err),
				)
			}
		}
	}
}

func handleVerifyRequest(ctx context.Context, req verifyRequest, agent importer.Verifier, st store.Store) error {
	mapping, err := loadMapping(req.Source)
	if err != nil {
		return err
	}

	cand, err := mapper.Normalize(req.Record, mapping)
	if err != nil {
		return eris.Wrap(err, "normalize record")
	}

	result, err := agent.Verify(ctx, cand, model.RunType(req.RunType))
	if err != nil {
		return eris.Wrap(err, "verify candidate")
	}

	entry := &model.VerificationLog{
		ID:        uuid.New().String(),
		RunType:   result.RunType,
		Result:    *result,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.InsertVerificationLog(ctx, entry); err != nil {
		return eris.Wrap(err, "record verification result")
	}

	zap.L().Info("webhook verification complete",
		zap.String("source", req.Source),
		zap.String("candidate", cand.Name),
		zap.Float64("score", result.OverallScore),
		zap.String("decision", string(result.Decision)),
	)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
