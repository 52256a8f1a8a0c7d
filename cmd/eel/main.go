package main

import (
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/thehivecorporation/log"

	eel "github.com/bjitd/eel-sdk"
	catalogjsonfile "github.com/bjitd/eel-sdk/catalog/jsonfile"
	formatparquet "github.com/bjitd/eel-sdk/format/parquet"
	fslocal "github.com/bjitd/eel-sdk/fs/local"
	"github.com/bjitd/eel-sdk/metrics"
	"github.com/bjitd/eel-sdk/sink"
)

func main() {
	var (
		addr    = flag.String("addr", ":8080", "listen address")
		dataDir = flag.String("data", "/tmp/eel", "data directory")
		threads = flag.Int("threads", 4, "io threads")
	)
	flag.Parse()

	fs := fslocal.New()

	catalog, err := catalogjsonfile.Open(fs, path.Join(*dataDir, "catalog.json"))
	if err != nil {
		panic(err)
	}

	if err = catalog.RegisterTable("default", "events", path.Join(*dataDir, "events"), "country"); err != nil {
		panic(err)
	}

	schema := eel.NewSchema(
		eel.Field{Name: "event_id", Type: eel.TypeInt64},
		eel.Field{Name: "country", Type: eel.TypeString},
		eel.Field{Name: "value", Type: eel.TypeFloat64, Nullable: true},
	)

	cfg := eel.NewDefaultSinkConfig("default", "events")
	cfg.IoThreads = *threads

	srv := &ingestServer{schema: schema}

	rawSink, err := sink.New(cfg, schema, catalog, fs, formatparquet.New(),
		eel.FileCreatedFunc(srv.fileCreated))
	if err != nil {
		panic(err)
	}
	srv.raw = rawSink
	srv.sink = metrics.New(rawSink)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		if err := srv.sink.Close(); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Error closing sink")
			os.Exit(1)
		}
		os.Exit(0)
	}()

	r := gin.Default()
	srv.routes(r)

	log.WithFields(log.Fields{"addr": *addr, "data": *dataDir}).Info("Starting ingest server")
	if err := r.Run(*addr); err != nil {
		panic(err)
	}
}
