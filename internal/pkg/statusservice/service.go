package statusservice

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"

	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/utils"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DB loads media info
type DB interface {
	LoadMedia(ctx context.Context, id string) (*persistence.Media, error)
	ListVariants(ctx context.Context, mediaID string) ([]*persistence.Variant, error)
}

// WSConnHandler WebSocketConnection wrapper
type WSConnHandler interface {
	HandleConnection(WsConn) error
	GetConnections(id string) ([]WsConn, bool)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	WSHandler WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP VIDMILL status service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vidmill_status", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/status/:id", statusHandler(data))
	e.GET("/live", live(data))
	e.GET("/subscribe", subscribeHandler(data))

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

type variantResult struct {
	Quality string `json:"quality"`
	Status  string `json:"status"`
	Path    string `json:"path,omitempty"`
}

type result struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Error           string          `json:"error,omitempty"`
	ErrorCode       string          `json:"errorCode,omitempty"`
	Title           string          `json:"title,omitempty"`
	Duration        float64         `json:"duration,omitempty"`
	ThumbnailReady  bool            `json:"thumbnailReady,omitempty"`
	TranscriptReady bool            `json:"transcriptReady,omitempty"`
	Variants        []variantResult `json:"variants,omitempty"`
}

func statusHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("status method")()
		ctx := c.Request().Context()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		m, err := data.DB.LoadMedia(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if m == nil {
			return c.JSON(http.StatusOK, result{ID: id, Status: "NOT_FOUND", Error: "NOT_FOUND",
				ErrorCode: "NOT_FOUND"})
		}
		variants, err := data.DB.ListVariants(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, *mapMedia(m, variants))
	}
}

func mapMedia(m *persistence.Media, variants []*persistence.Variant) *result {
	res := &result{ID: m.ID, Status: m.Status, Error: utils.FromSQLStr(m.LastError), Title: m.Title,
		Duration:        utils.FromSQLFloat64OrZero(m.Duration),
		ThumbnailReady:  utils.FromSQLStr(m.ThumbnailPath) != "",
		TranscriptReady: utils.FromSQLStr(m.TranscriptPath) != ""}
	for _, v := range variants {
		res.Variants = append(res.Variants, variantResult{Quality: v.Quality, Status: v.Status,
			Path: utils.FromSQLStr(v.Path)})
	}
	return res
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}
