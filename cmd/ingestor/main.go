package main

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/cache"
	"github.com/stitchworks/factory-pulse/internal/cloud"
	"github.com/stitchworks/factory-pulse/internal/config"
	"github.com/stitchworks/factory-pulse/internal/database"
	"github.com/stitchworks/factory-pulse/internal/domain"
	"github.com/stitchworks/factory-pulse/internal/hub"
	"github.com/stitchworks/factory-pulse/internal/service"
)

// The ingestor turns shop-floor MQTT movement messages into recorded stock
// movements, so scanners and scales feed the same path as the REST API.
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
	if config.UseCloudServices() {
		dyn, err := cloud.NewDynamoCache(config.AWSRegion(), config.CacheTable())
		if err != nil {
			log.Fatal().Err(err).Msg("dynamodb cache init failed")
		}
		store = dyn
	}

	h := hub.New(store)
	svcs := service.New(db, store, h, service.NewSimulatedProvider(time.Now().UnixNano()), service.Intervals{
		Machine:    config.MachinePollInterval(),
		Inventory:  config.InventoryPollInterval(),
		Production: config.ProductionPollInterval(),
		Analytics:  config.AnalyticsPollInterval(),
	})

	opts := mqtt.NewClientOptions().AddBroker(config.MQTTBroker())
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var mv domain.StockMovement
		if err := json.Unmarshal(msg.Payload(), &mv); err != nil {
			log.Error().Err(err).Str("topic", msg.Topic()).Msg("bad movement payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := svcs.Inventory.RecordStockMovement(ctx, mv); err != nil {
			log.Error().Err(err).Str("item", mv.ItemID).Msg("ingest failed")
		}
	}

	if token := client.Subscribe("factory/movements", 0, handler); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("subscribe failed")
	}

	log.Info().Msg("ingestor running; Ctrl+C to stop")
	for {
		time.Sleep(10 * time.Second)
	}
}
