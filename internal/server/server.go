// Package server wires the HTTP surface: the streaming chat endpoint,
// AI-summary polling, reports, and risk prediction proxies.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kianbahrami/labassist/config"
	"github.com/kianbahrami/labassist/internal/llm"
	"github.com/kianbahrami/labassist/internal/pipeline"
	"github.com/kianbahrami/labassist/internal/risk"
	"github.com/kianbahrami/labassist/internal/store"
	"github.com/kianbahrami/labassist/internal/summary"
	"github.com/kianbahrami/labassist/internal/vector"
)

// Run builds the dependency graph and serves HTTP until the listener stops.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.General.Debug
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.Open(dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	generator, err := llm.NewOllama(cfg.Ollama)
	if err != nil {
		return fmt.Errorf("ollama client: %w", err)
	}
	searcher := vector.NewChroma(cfg.Chroma, generator)
	predictor := risk.NewClient(cfg.Risk)

	pipelineLogger := log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	pipe := pipeline.New(generator, searcher, predictor, st, pipelineLogger)

	summaryLogger := log.New(log.Writer(), "[SUMMARY] ", log.LstdFlags)
	summaries := summary.NewService(st, generator, summaryLogger)

	chat := &ChatHandler{Pipeline: pipe, Logger: baseLogger}
	chat.Register(e)

	summaryHandler := &SummaryHandler{Summaries: summaries}
	summaryHandler.Register(e)

	reports := &ReportsHandler{Store: st, Predictor: predictor}
	reports.Register(e)

	return e.Start(cfg.Server.Address)
}
