package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vidmill/vidmill/internal/pkg/embedding"
	"github.com/vidmill/vidmill/internal/pkg/index"
	"github.com/vidmill/vidmill/internal/pkg/postgres"
	"github.com/vidmill/vidmill/internal/pkg/search"
	"github.com/vidmill/vidmill/internal/pkg/vector"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &search.Data{}
	data.Port = cfg.GetInt("port")
	var err error

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	emb, err := embedding.NewClient(ctx, cfg.GetString("gemini.key"), cfg.GetString("gemini.embeddingModel"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init embedding client")
	}

	wvCl, err := weaviate.NewClient(weaviate.Config{Host: cfg.GetString("weaviate.host"),
		Scheme: cfg.GetString("weaviate.scheme")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init weaviate client")
	}
	vecStore, err := vector.NewStore(wvCl)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init vector store")
	}

	data.Retriever, err = index.NewRetriever(db, vecStore, emb)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init retriever")
	}

	err = search.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
     _   __(_)___/ /___ ___  (_) / /
    | | / / / __  / __ ` + "`" + `__ \/ / / /
    | |/ / / /_/ / / / / / / / / /
    |___/_/\__,_/_/ /_/ /_/_/_/_/

    ________  ____ ___________/ /_
   / ___/ _ \/ __ ` + "`" + `/ ___/ ___/ __ \
  (__  )  __/ /_/ / /  / /__/ / / /
 /____/\___/\__,_/_/   \___/_/ /_/  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/vidmill/vidmill"))
}
