package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"coverpool/config"
	"coverpool/native/pool"
	"coverpool/observability"
	"coverpool/services/poold"
	"coverpool/services/poold/indexer"
)

// EventQuery serves historical events.
type EventQuery interface {
	Query(ctx context.Context, f indexer.Filter) ([]poold.Envelope, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Node      *poold.Node
	Hub       *poold.Hub
	Events    EventQuery
	Auth      config.AuthConfig
	RateLimit config.RateLimitConfig
	Logger    *slog.Logger
	Now       func() time.Time
}

// Server is the HTTP API over the pool ledger.
type Server struct {
	node       *poold.Node
	hub        *poold.Hub
	events     EventQuery
	auth       *authenticator
	limiter    *rateLimiter
	logger     *slog.Logger
	apiMetrics interface {
		Observe(route, method string, status int, d time.Duration)
		RecordThrottle(reason string)
		RecordRejection(op, reason string)
	}
	now    func() time.Time
	router http.Handler
}

// New constructs the router with authentication, rate limiting and
// instrumentation.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		node:   cfg.Node,
		hub:    cfg.Hub,
		events: cfg.Events,
		auth: &authenticator{
			secret:    []byte(cfg.Auth.JWTSecret()),
			issuer:    strings.TrimSpace(cfg.Auth.Issuer),
			audience:  strings.TrimSpace(cfg.Auth.Audience),
			anonReads: cfg.Auth.AllowAnonymousReads,
			now:       now,
		},
		limiter:    newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, now),
		logger:     logger.With("component", "api"),
		apiMetrics: observability.API(),
		now:        now,
	}
	if len(s.auth.secret) == 0 {
		s.logger.Warn("no JWT secret configured; mutating routes will reject every request")
	}
	s.router = otelhttp.NewHandler(s.buildRouter(), "poold")
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)
	r.Use(s.authenticate)
	r.Use(s.rateLimit)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(read chi.Router) {
			read.Use(s.requireReader)
			read.Get("/status", s.handleStatus)
			read.Get("/assets", s.handleAssets)
			read.Get("/assets/{asset}", s.handleAsset)
			read.Get("/assets/{asset}/rate", s.handleRate)
			read.Get("/assets/{asset}/stakers/{account}", s.handleStaker)
			read.Get("/withdrawals/{asset}/{account}", s.handleWithdrawals)
			read.Get("/yield", s.handleYieldState)
			read.Get("/yield/underlying", s.handleUnderlying)
			read.Get("/yield/accounts/{account}", s.handleYieldAccount)
			read.Get("/weights", s.handleWeights)
			read.Get("/params", s.handleParams)
			read.Get("/protocols/{protocol}", s.handleProtocol)
			read.Get("/protocols/{protocol}/{asset}", s.handleProtocolStream)
			read.Get("/accounts/{account}/balances/{asset}", s.handleTokenBalance)
			read.Get("/events", s.handleEvents)
			read.Get("/events/ws", s.handleEventStream)
		})

		api.Group(func(staker chi.Router) {
			staker.Use(s.requireScope(ScopeStaker))
			staker.Post("/stake", s.handleStake)
			staker.Post("/claims/transfer", s.handleTransferClaim)
			staker.Post("/withdraw", s.handleWithdraw)
			staker.Post("/withdraw/cancel", s.handleWithdrawCancel)
			staker.Post("/withdraw/claim", s.handleWithdrawClaim)
			staker.Post("/withdraw/purge", s.handleWithdrawPurge)
			staker.Post("/harvest", s.handleHarvest)
			staker.Post("/redeem", s.handleRedeem)
			staker.Post("/yield/transfer", s.handleTransferYield)
		})

		api.With(s.requireScope("")).Post("/premiums/payoff", s.handlePayoff)

		api.Group(func(protocol chi.Router) {
			protocol.Use(s.requireScope(ScopeProtocol))
			protocol.Post("/protocols/balance/deposit", s.handleProtocolDeposit)
			protocol.Post("/protocols/balance/withdraw", s.handleProtocolWithdraw)
		})

		api.Route("/gov", func(gov chi.Router) {
			gov.Use(s.requireScope(ScopeGov))
			gov.Post("/block", s.handleBlock)
			gov.Post("/premiums", s.handleSetPremiums)
			gov.Post("/prices", s.handleSetPrices)
			gov.Post("/weights", s.handleSetWeights)
			gov.Post("/weights/init", s.handleInitWeights)
			gov.Post("/payout", s.handlePayout)
			gov.Post("/harvest", s.handleHarvestStakers)
			gov.Post("/params", s.handleSetParams)
			gov.Post("/assets", s.handleAssetAdd)
			gov.Post("/assets/{asset}/disable-deposits", s.handleAssetDisableDeposits)
			gov.Post("/assets/{asset}/disable-premiums", s.handleAssetDisablePremiums)
			gov.Post("/assets/{asset}/exit-fee", s.handleAssetExitFee)
			gov.Post("/assets/{asset}/remove", s.handleAssetRemove)
			gov.Post("/protocols", s.handleProtocolAdd)
			gov.Post("/protocols/{protocol}/assets", s.handleProtocolDepositAdd)
			gov.Post("/protocols/{protocol}/update", s.handleProtocolUpdate)
			gov.Post("/protocols/{protocol}/remove", s.handleProtocolRemove)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "height": s.node.Height()})
}

// mutate runs fn as one committed ledger operation and writes the outcome.
// Rejections are logged with their reason code.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op, asset string, fn func(*pool.Engine) (any, error)) {
	var out any
	err := s.node.Do(op, func(e *pool.Engine) error {
		var err error
		out, err = fn(e)
		return err
	})
	if err != nil {
		reason := reasonFor(err)
		s.apiMetrics.RecordRejection(op, reason)
		s.logger.Warn("operation rejected",
			"op", op,
			"asset", asset,
			"reason", reason,
			"requestId", r.Header.Get(requestIDHeader),
			"error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Height: s.node.Height(), Result: out})
}

// view runs a read and writes its result.
func (s *Server) view(w http.ResponseWriter, fn func(*pool.Engine) (any, error)) {
	var out any
	err := s.node.View(func(e *pool.Engine) error {
		var err error
		out, err = fn(e)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func caller(r *http.Request) [20]byte {
	return IdentityFrom(r.Context()).Account
}
