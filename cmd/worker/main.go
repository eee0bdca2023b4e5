package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
	"github.com/vidmill/vidmill/internal/pkg/embedding"
	"github.com/vidmill/vidmill/internal/pkg/filer"
	"github.com/vidmill/vidmill/internal/pkg/index"
	"github.com/vidmill/vidmill/internal/pkg/postgres"
	"github.com/vidmill/vidmill/internal/pkg/transcription"
	"github.com/vidmill/vidmill/internal/pkg/utils"
	"github.com/vidmill/vidmill/internal/pkg/vector"
	"github.com/vidmill/vidmill/internal/pkg/worker"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config
	go utils.RunPerfEndpoint()

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 5)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	fl, err := filer.NewFiler(ctx, filer.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	data.Transcriber, err = transcription.NewClient(ctx, cfg.GetString("gemini.key"),
		cfg.GetString("gemini.transcriptionModel"), cfg.GetString("gemini.language"), fl)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcription client")
	}

	emb, err := embedding.NewClient(ctx, cfg.GetString("gemini.key"), cfg.GetString("gemini.embeddingModel"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init embedding client")
	}

	wvCl, err := weaviate.NewClient(weaviate.Config{Host: cfg.GetString("weaviate.host"),
		Scheme: defaultV(cfg.GetString("weaviate.scheme"), "http")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init weaviate client")
	}
	if err := vector.EnsureSchema(ctx, wvCl); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init weaviate schema")
	}
	vecStore, err := vector.NewStore(wvCl)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init vector store")
	}
	data.Indexer, err = index.NewStore(db, vecStore, emb)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init indexer")
	}

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func defaultV[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
    _   __(_)___/ /___ ___  (_) / /
   | | / / / __  / __ ` + "`" + `__ \/ / / /
   | |/ / / /_/ / / / / / / / / /
   |___/_/\__,_/_/ /_/ /_/_/_/_/   v: %s

                       __
  _      ______  _____/ /_____  _____
 | | /| / / __ \/ ___/ //_/ _ \/ ___/
 | |/ |/ / /_/ / /  / ,< /  __/ /
 |__/|__/\____/_/  /_/|_|\___/_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/vidmill/vidmill"))
}
