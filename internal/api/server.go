// Package api exposes the Concierge operations over HTTP.
package api

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/ledger"
	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/internal/store"
	"github.com/concierge-labs/concierge/pkg/storage"
)

// InsightRunner computes insights for one file.
type InsightRunner interface {
	Run(ctx context.Context, req model.InsightRequest) (*model.InsightResult, error)
}

// LedgerAccount serves the user-triggered ledger actions.
type LedgerAccount interface {
	Check(ctx context.Context) (ledger.Balance, bool, error)
	Create(ctx context.Context, wei *big.Int) (ledger.Balance, error)
	Deposit(ctx context.Context, wei *big.Int) (ledger.Balance, error)
}

// SubAccountFunder moves funds to a provider sub-account.
type SubAccountFunder interface {
	FundProvider(ctx context.Context, provider string, wei *big.Int) (ledger.Balance, error)
}

// ModelLister lists broker services.
type ModelLister interface {
	Services(ctx context.Context) ([]model.Service, error)
}

// Vault reads and registers vault records.
type Vault interface {
	FilesByUser(ctx context.Context, owner string) ([]model.VaultFile, error)
	AddFile(ctx context.Context, rootHash, category, encryptedKey, insightsCID string) (string, error)
}

// RunReader reads insight run history.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Insights InsightRunner
	Ledger   LedgerAccount
	Funder   SubAccountFunder
	Models   ModelLister
	Storage  storage.Client
	Vault    Vault
	Runs     RunReader
}

// Options tune the server.
type Options struct {
	AllowedOrigins    []string
	UploadConcurrency int
	MaxUploadBytes    int64
	DefaultCreateOG   decimal.Decimal
}

const (
	defaultMaxUploadBytes    = 32 << 20
	defaultUploadConcurrency = 2
)

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
	opts Options
}

// New creates a Server, filling unset options with defaults.
func New(deps Deps, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = defaultUploadConcurrency
	}
	if !opts.DefaultCreateOG.IsPositive() {
		opts.DefaultCreateOG = decimal.RequireFromString("0.1")
	}
	return &Server{deps: deps, opts: opts}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/models", s.handleModels)
	r.Post("/computeInsights", s.handleComputeInsights)
	r.Post("/ledger", s.handleLedger)
	r.Post("/uploadFile", s.handleUploadFile)

	r.Route("/files", func(r chi.Router) {
		r.Get("/", s.handleListFiles)
		r.Get("/{rootHash}/content", s.handleFileContent)
	})
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
