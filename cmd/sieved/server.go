package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/countstore"
	"github.com/sievemod/sieve/engine"
	"github.com/sievemod/sieve/feedback"
	"github.com/sievemod/sieve/override"
	"github.com/sievemod/sieve/points"
	"github.com/sievemod/sieve/store"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/gorm"
)

type Server struct {
	logger   *slog.Logger
	echo     *echo.Echo
	httpd    *http.Server
	store    *store.Store
	engine   *engine.Engine
	calc     *consensus.Calculator
	selector *feedback.Selector
	gate     *override.ReviewGate
	points   *points.Client
}

type Config struct {
	Logger       *slog.Logger
	Bind         string
	RedisURL     string
	PointsHost   string
	RegexTimeout time.Duration
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	st, err := store.NewStore(db, logger)
	if err != nil {
		return nil, err
	}

	var counters countstore.CountStore
	if config.RedisURL != "" {
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, err
		}
		counters = cnt
	} else {
		counters = countstore.NewMemCountStore()
	}

	evaluator := engine.NewEvaluator(logger)
	if config.RegexTimeout > 0 {
		evaluator.RegexTimeout = config.RegexTimeout
	}

	eng := &engine.Engine{
		Logger:    logger,
		Rules:     st,
		Counters:  counters,
		Evaluator: evaluator,
		Decisions: st,
	}

	pts := points.NewClient(config.PointsHost, logger)

	recommender := override.NewRecommender(logger, st.Recommendations(), st, st)

	calc := consensus.NewCalculator(logger, st, st.ConsensusRecords())
	calc.OnReliable = func(ctx context.Context, rec consensus.Record) error {
		_, err := recommender.HandleConsensus(ctx, rec)
		return err
	}

	gate := &override.ReviewGate{
		Logger:    logger,
		Recs:      st.Recommendations(),
		Decisions: st,
		Votes:     st,
		Counters:  counters,
		Applier:   &logApplier{logger: logger},
		Points:    pts,
	}

	selector := feedback.NewSelector(logger, st, st)

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echoprometheus.NewMiddleware("sieved"))

	srv := &Server{
		logger:   logger,
		echo:     e,
		store:    st,
		engine:   eng,
		calc:     calc,
		selector: selector,
		gate:     gate,
		points:   pts,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 * (1024 * 1024),
	}

	e.GET("/_health", srv.HandleHealthCheck)
	e.POST("/event", srv.HandleEvent)
	e.GET("/decisions/:contentID", srv.GetDecision)
	e.POST("/votes", srv.SubmitVote)
	e.GET("/feedback/opportunities", srv.GetFeedbackOpportunities)
	e.POST("/overrides/:overrideID/review", srv.ReviewOverride)

	return srv, nil
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) RunAPI(ctx context.Context) error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	quit := make(chan struct{})
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-exitSignals:
			srv.logger.Info("received OS exit signal", "signal", sig)
		case <-ctx.Done():
			srv.logger.Info("context cancelled")
		}

		if err := srv.Shutdown(); err != nil {
			srv.logger.Error("HTTP server shutdown error", "err", err)
		}
		close(quit)
	}()
	<-quit
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}

// logApplier records approved overrides in the service log. Deployments that
// propagate overrides to an enforcement system swap in their own
// override.ActionApplier; re-application with the same recommendation is a
// no-op there, so repeated approvals stay safe.
type logApplier struct {
	logger *slog.Logger
}

func (a *logApplier) ApplyOverride(ctx context.Context, rec override.Recommendation) error {
	a.logger.Info("applying override",
		"overrideID", rec.ID,
		"contentID", rec.ContentID,
		"originalAction", rec.OriginalAction,
		"recommendedAction", rec.RecommendedAction,
	)
	return nil
}
