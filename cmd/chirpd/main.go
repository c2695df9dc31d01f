package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/chirpchat/chirp/internal/config"
	"github.com/chirpchat/chirp/internal/group"
	"github.com/chirpchat/chirp/internal/handlers"
	"github.com/chirpchat/chirp/internal/hub"
	"github.com/chirpchat/chirp/internal/message"
	"github.com/chirpchat/chirp/internal/pipeline"
)

func main() {
	cfgPath := flag.String("config", "chirp.yml", "path to config file")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to load config")
	}
	logrus.SetLevel(cfg.LogLevel())

	key, err := cfg.MasterKey()
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to resolve master key")
	}
	cipher, err := pipeline.NewCipher(key)
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to build cipher")
	}

	media, err := pipeline.NewDiskMediaStore(cfg.Media.Dir)
	if err != nil {
		// sends degrade to inline references, the server still runs
		logrus.WithField("error", err).Warn("Media store unavailable")
		media = nil
	}

	groups := group.NewRegistry()

	storeCfg := message.StoreConfig{
		Path:       cfg.Storage.Path,
		Cipher:     cipher,
		Classifier: pipeline.KeywordClassifier{},
		Members:    groups,
	}
	if media != nil {
		storeCfg.Media = media
	}
	store, err := message.Open(storeCfg)
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to open message store")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New()
	go h.Run(ctx)

	app := fiber.New()
	api := &handlers.API{Store: store, Hub: h, Groups: groups}
	api.Register(app)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logrus.Info("Shutting down")
		cancel()
		_ = app.Shutdown()
	}()

	if err := app.Listen(cfg.Server.Addr); err != nil {
		logrus.WithField("error", err).Fatal("Server stopped")
	}
}
