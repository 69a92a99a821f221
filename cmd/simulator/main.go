package main

import (
	"encoding/json"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/config"
	"github.com/stitchworks/factory-pulse/internal/domain"
)

var items = []struct {
	ID  string
	SKU string
}{
	{"item-001", "FAB-COTTON-WHT"},
	{"item-002", "FAB-POLY-BLK"},
	{"item-003", "THR-POLY-NAT"},
	{"item-004", "INK-PLASTISOL-RED"},
	{"item-005", "TRIM-ZIP-20CM"},
}

// The simulator publishes a stream of plausible stock movements so the
// ingestor and monitors can be exercised without a shop floor.
func main() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	opts := mqtt.NewClientOptions().AddBroker(config.MQTTBroker())
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	for i := 0; i < 200; i++ {
		item := items[rng.Intn(len(items))]
		mv := domain.StockMovement{
			ItemID:     item.ID,
			SKU:        item.SKU,
			Type:       domain.MovementOut,
			Quantity:   1 + float64(rng.Intn(20)),
			Reason:     "production consumption",
			OperatorID: "sim",
			Timestamp:  time.Now(),
		}
		if rng.Float64() < 0.2 {
			mv.Type = domain.MovementIn
			mv.Quantity = 50 + float64(rng.Intn(200))
			mv.Reason = "goods receipt"
			mv.ToLocation = "WH-A"
		}
		payload, _ := json.Marshal(mv)
		token := client.Publish("factory/movements", 0, false, payload)
		token.Wait()
		time.Sleep(500 * time.Millisecond)
	}
	log.Info().Msg("simulation done")
}
