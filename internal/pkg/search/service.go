package search

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/vidmill/vidmill/internal/pkg/api"
)

// Retriever runs ranked retrieval over the chunk index
type Retriever interface {
	SearchChunks(ctx context.Context, req *api.SearchRequest) (*api.SearchResponse, error)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	Retriever Retriever
}

const maxQueryLen = 2000

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP VIDMILL search service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	e := initRoutes(data)

	e.Server.Addr = ":" + strconv.Itoa(data.Port)
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Retriever == nil {
		return errors.New("no retriever")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vidmill_search", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/search", search(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func search(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("search method")()
		ctx := c.Request().Context()

		var req api.SearchRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't parse input")
		}
		req.Query = strings.TrimSpace(req.Query)
		if req.Query == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no query")
		}
		if len(req.Query) > maxQueryLen {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("query longer than %d chars", maxQueryLen))
		}
		if req.TopK < 0 || req.MinScore < 0 || req.MinScore > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong topK/minScore")
		}

		res, err := data.Retriever.SearchChunks(ctx, &req)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, res)
	}
}
