package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/cache"
	"github.com/stitchworks/factory-pulse/internal/cloud"
	"github.com/stitchworks/factory-pulse/internal/config"
	"github.com/stitchworks/factory-pulse/internal/database"
	httpHandlers "github.com/stitchworks/factory-pulse/internal/http"
	"github.com/stitchworks/factory-pulse/internal/hub"
	"github.com/stitchworks/factory-pulse/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	var store cache.Store = cache.NewMemory()
	var sink service.ReportSink
	if config.UseCloudServices() {
		dyn, err := cloud.NewDynamoCache(config.AWSRegion(), config.CacheTable())
		if err != nil {
			log.Fatal().Err(err).Msg("dynamodb cache init failed")
		}
		store = dyn
	}

	h := hub.New(store)
	if config.UseCloudServices() {
		if arn := config.SNSTopicArn(); arn != "" {
			sns, err := cloud.NewSNSClient(config.AWSRegion(), arn)
			if err != nil {
				log.Fatal().Err(err).Msg("sns init failed")
			}
			h.WithEscalator(sns)
		}
		s3c, err := cloud.NewS3Client(config.AWSRegion(), config.S3Bucket())
		if err != nil {
			log.Fatal().Err(err).Msg("s3 init failed")
		}
		sink = s3c
	}

	if broker := config.MQTTBroker(); broker != "" {
		bridge, err := hub.NewMQTTBridge(broker)
		if err != nil {
			log.Warn().Err(err).Msg("mqtt bridge unavailable, running without")
		} else {
			h.WithBridge(bridge)
			defer bridge.Close()
		}
	}

	svcs := service.New(db, store, h, service.NewSimulatedProvider(time.Now().UnixNano()), service.Intervals{
		Machine:    config.MachinePollInterval(),
		Inventory:  config.InventoryPollInterval(),
		Production: config.ProductionPollInterval(),
		Analytics:  config.AnalyticsPollInterval(),
	})
	if sink != nil {
		svcs.Analytics.SetReportSink(sink)
	}
	svcs.Start()
	defer svcs.Stop()

	app := fiber.New()
	httpHandlers.Register(app, svcs, h)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		_ = app.Shutdown()
	}()

	addr := config.APIAddr()
	log.Info().Str("addr", addr).Msg("api listening")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server exit")
	}
}
