package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-crawler/internal/monitoring"
	"github.com/sells-group/shelf-crawler/internal/rules"
	"github.com/sells-group/shelf-crawler/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve current prices and run history over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg, err := initRegistry(cfg)
		if err != nil {
			return err
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter exposes the read side of the store.
func newRouter(st store.Store, reg *rules.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/retailers", func(w http.ResponseWriter, _ *http.Request) {
		type retailer struct {
			Name     string   `json:"name"`
			SeedURL  string   `json:"seed_url"`
			Category string   `json:"category_strategy"`
			Fields   []string `json:"fields"`
		}
		sets := reg.All()
		out := make([]retailer, 0, len(sets))
		for _, rs := range sets {
			out = append(out, retailer{
				Name:     rs.Name(),
				SeedURL:  rs.SeedURL(),
				Category: string(rs.Strategy()),
				Fields:   rs.Fields(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/prices", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, err := intParam(q.Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		offset, err := intParam(q.Get("offset"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		prices, err := st.ListCurrentPrices(req.Context(), store.PriceFilter{
			Retailer: q.Get("retailer"),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			zap.L().Error("list prices failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list prices failed")
			return
		}
		writeJSON(w, http.StatusOK, prices)
	})

	r.Get("/prices/current", func(w http.ResponseWriter, req *http.Request) {
		productURL := req.URL.Query().Get("url")
		if productURL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		cp, err := st.CurrentPrice(req.Context(), productURL)
		if err != nil {
			zap.L().Error("current price failed", zap.String("url", productURL), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "current price failed")
			return
		}
		if cp == nil {
			writeError(w, http.StatusNotFound, "no price recorded")
			return
		}
		writeJSON(w, http.StatusOK, cp)
	})

	r.Get("/monitoring", func(w http.ResponseWriter, req *http.Request) {
		hours, err := intParam(req.URL.Query().Get("hours"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		if hours == 0 {
			hours = 24
		}
		snap, err := monitoring.NewCollector(st).Collect(req.Context(), hours)
		if err != nil {
			zap.L().Error("collect metrics failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "collect metrics failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		limit, err := intParam(req.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		runs, err := st.ListRuns(req.Context(), limit)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

// intParam parses an optional non-negative query parameter.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
