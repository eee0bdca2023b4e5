package upload

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vidmill/vidmill/internal/pkg/api"
	"github.com/vidmill/vidmill/internal/pkg/dispatch"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/utils"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// FileSaver provides save file functionality
type FileSaver interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// Dispatcher creates and publishes encoding jobs
type Dispatcher interface {
	CreateEncodingJobs(ctx context.Context, media *persistence.Media, sourceWidth, sourceHeight int,
		opts dispatch.JobOptions) (string, error)
	RetryFailedJob(ctx context.Context, jobID string) error
}

// DB saves media records
type DB interface {
	InsertMedia(ctx context.Context, m *persistence.Media) error
	LoadMedia(ctx context.Context, id string) (*persistence.Media, error)
	UpdateMediaStatus(ctx context.Context, id string, to status.Status, from ...status.Status) (bool, error)
	SetMediaFailure(ctx context.Context, id string, st status.Status, errMsg string) error
}

// Data keeps data required for service work
type Data struct {
	Port        int
	Saver       FileSaver
	DB          DB
	Dispatcher  Dispatcher
	RetrySecret string
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP VIDMILL upload service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Saver == nil {
		return errors.New("no file saver")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Dispatcher == nil {
		return fmt.Errorf("no dispatcher")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vidmill_upload", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/upload", upload(data))
	e.POST("/confirm/:id", confirm(data))
	if data.RetrySecret != "" {
		e.POST(fmt.Sprintf("/retry/%s/:id", data.RetrySecret), retry(data))
	}
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

type result struct {
	ID    string `json:"id"`
	JobID string `json:"jobId,omitempty"`
}

func upload(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("upload method")()
		ctx := c.Request().Context()

		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)
		if err := validateFormParams(form); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		file, handler, err := takeFile(form, api.PrmFile)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		defer file.Close()

		m := persistence.Media{}
		m.ID = uuid.New().String()
		fn, err := validateExtractFile(handler)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		m.Title = c.FormValue(api.PrmTitle)
		if m.Title == "" {
			m.Title = handler.Filename
		}
		m.UserID = c.FormValue(api.PrmUser)
		m.ModuleID = c.FormValue(api.PrmModule)
		m.Email = utils.ToSQLStr(c.FormValue(api.PrmEmail))
		m.AIEnabled = utils.ParamTrue(c.FormValue(api.PrmAI))
		m.RawPath = utils.ToSQLStr(rawPath(m.ID, fn))
		m.Status = status.Uploading.String()
		m.Created = time.Now()

		if err := data.DB.InsertMedia(ctx, &m); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if err := data.Saver.SaveFile(ctx, m.RawPath.String, file, handler.Size); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}

		return c.JSON(http.StatusOK, result{ID: m.ID})
	}
}

type confirmInput struct {
	SourceWidth  int      `json:"sourceWidth"`
	SourceHeight int      `json:"sourceHeight"`
	Qualities    []string `json:"qualities"`
}

func confirm(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("confirm method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no ID")
		}
		var input confirmInput
		if err := c.Bind(&input); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't parse input")
		}

		media, err := data.DB.LoadMedia(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if media == nil {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no media '%s'", id))
		}
		moved, err := data.DB.UpdateMediaStatus(ctx, id, status.Encoding, status.Uploading)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if !moved {
			return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("media '%s' is %s", id, media.Status))
		}

		jobID, err := data.Dispatcher.CreateEncodingJobs(ctx, media, input.SourceWidth, input.SourceHeight,
			dispatch.JobOptions{SelectedQualities: input.Qualities, EnableAI: media.AIEnabled})
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			if errS := data.DB.SetMediaFailure(ctx, id, status.Error, err.Error()); errS != nil {
				goapp.Log.Error().Err(errS).Send()
			}
			return echo.NewHTTPError(http.StatusInternalServerError)
		}

		return c.JSON(http.StatusOK, result{ID: id, JobID: jobID})
	}
}

func retry(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("retry method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no ID")
		}
		if err := data.Dispatcher.RetryFailedJob(ctx, id); err != nil {
			goapp.Log.Error().Err(err).Send()
			if errors.Is(err, dispatch.ErrRetryDenied) {
				return echo.NewHTTPError(http.StatusConflict, err.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError)
		}

		return c.JSON(http.StatusOK, result{ID: id})
	}
}

func rawPath(id, fn string) string {
	return fmt.Sprintf("%s/raw/%s", id, filepath.Base(fn))
}

func cleanFiles(f *multipart.Form) {
	if f != nil {
		_ = f.RemoveAll()
	}
}

func validateFormParams(form *multipart.Form) error {
	allowed := map[string]bool{api.PrmTitle: true, api.PrmEmail: true, api.PrmUser: true,
		api.PrmModule: true, api.PrmAI: true}
	for k := range form.Value {
		if !allowed[k] {
			return errors.Errorf("unknown parameter '%s'", k)
		}
	}
	for k := range form.File {
		if k != api.PrmFile {
			return errors.Errorf("unexpected form file parameter '%s'", k)
		}
	}
	return nil
}

func takeFile(form *multipart.Form, paramName string) (multipart.File, *multipart.FileHeader, error) {
	fhs := form.File[paramName]
	if len(fhs) == 0 {
		return nil, nil, http.ErrMissingFile
	}
	handler := fhs[0]
	file, err := handler.Open()
	return file, handler, err
}

func validateExtractFile(h *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(h.Filename))
	if !utils.SupportMediaExt(ext) {
		return "", fmt.Errorf("wrong file extension: %s", ext)
	}
	fn, err := utils.MakeValidateFileName("", h.Filename)
	if err != nil {
		return "", fmt.Errorf("wrong file name: %s", h.Filename)
	}
	return fn, nil
}
