package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hpungsan/colorbook/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates the HTTP server for the colorbook UI and JSON API.
func NewServer(studio *ops.Studio, version, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewRouter(studio, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the route table. Split from NewServer for tests.
func NewRouter(studio *ops.Studio, version string) http.Handler {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("template sub-FS: %v", err))
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static sub-FS: %v", err))
	}

	h := &Handlers{
		studio:   studio,
		renderer: NewRenderer(templateSub, version, studio.Logger),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/history", http.StatusFound)
	})
	r.Get("/history", h.HandleHistoryPage)
	r.Get("/history/{index}", h.HandleStoryPage)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/idea", h.HandleSuggest)
		r.Post("/generate", h.HandleGenerate)
		r.Post("/photo", h.HandlePhoto)
		r.Post("/regenerate", h.HandleRegenerate)

		r.Route("/canvas", func(r chi.Router) {
			r.Post("/fill", h.HandleFill)
			r.Post("/brush", h.HandleBrush)
			r.Post("/stroke", h.HandleBrush)
			r.Post("/commit", h.HandleCommit)
			r.Get("/{target}", h.HandleCanvasImage)
			r.Put("/{target}", h.HandleLoadCanvas)
			r.Delete("/{target}", h.HandleLoadCanvas)
		})

		r.Route("/story", func(r chi.Router) {
			r.Post("/", h.HandleCreateStory)
			r.Post("/read", h.HandleReadStory)
			r.Post("/stop", h.HandleStopStory)
			r.Get("/status", h.HandleNarrationStatus)
		})

		r.Post("/video", h.HandleExportVideo)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.HandleListHistory)
			r.Delete("/", h.HandleClearHistory)
			r.Post("/export", h.HandleExportHistory)
			r.Post("/import", h.HandleImportHistory)
			r.Post("/deselect", h.HandleDeselect)
			r.Get("/{index}", h.HandleShowHistory)
			r.Delete("/{index}", h.HandleRemoveHistory)
			r.Post("/{index}/select", h.HandleSelectHistory)
			r.Get("/{index}/image/{kind}", h.HandleRecordImage)
		})
	})

	return r
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and shuts it down gracefully on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("colorbook UI running", "url", "http://"+srv.Addr)
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
