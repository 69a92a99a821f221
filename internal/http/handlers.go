package http

import (
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/domain"
	"github.com/stitchworks/factory-pulse/internal/hub"
	"github.com/stitchworks/factory-pulse/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Register mounts the REST surface, the observer websocket, and the
// prometheus endpoint. Reads serve only cached state and return null
// before the first monitor tick.
func Register(app *fiber.App, svcs *service.Services, h *hub.Hub) {
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/ws", adaptor.HTTPHandlerFunc(serveWS(h)))

	registerMachines(app, svcs)
	registerInventory(app, svcs)
	registerProduction(app, svcs)
	registerAnalytics(app, svcs)
}

func registerMachines(app *fiber.App, svcs *service.Services) {
	g := app.Group("/machines")

	g.Get("/status", func(c *fiber.Ctx) error {
		out, err := svcs.Machines.AllStatuses(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(out)
	})
	g.Get("/status/:id", func(c *fiber.Ctx) error {
		st, err := svcs.Machines.Status(c.Context(), c.Params("id"))
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(st)
	})
	g.Get("/summary", func(c *fiber.Ctx) error {
		sum, err := svcs.Machines.Summary(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(sum)
	})
	g.Get("/:id/performance", func(c *fiber.Ctx) error {
		pm, err := svcs.Machines.Performance(c.Context(), c.Params("id"))
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(pm)
	})

	g.Post("/:id/status", func(c *fiber.Ctx) error {
		var body struct {
			Status string `json:"status"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		if err := svcs.Machines.SetMachineStatus(c.Context(), c.Params("id"), body.Status); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})
	g.Post("/:id/operator", func(c *fiber.Ctx) error {
		var body struct {
			OperatorID string `json:"operator_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		if err := svcs.Machines.SetMachineOperator(c.Context(), c.Params("id"), body.OperatorID); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})
	g.Post("/:id/maintenance", func(c *fiber.Ctx) error {
		var body struct {
			ScheduledAt time.Time `json:"scheduled_at"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		if err := svcs.Machines.ScheduleMaintenance(c.Context(), c.Params("id"), body.ScheduledAt); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})
}

func registerInventory(app *fiber.App, svcs *service.Services) {
	g := app.Group("/inventory")

	g.Get("/status", func(c *fiber.Ctx) error {
		out, err := svcs.Inventory.AllStatuses(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(out)
	})
	g.Get("/status/:id", func(c *fiber.Ctx) error {
		st, err := svcs.Inventory.Status(c.Context(), c.Params("id"))
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(st)
	})
	g.Get("/summary", func(c *fiber.Ctx) error {
		sum, err := svcs.Inventory.Summary(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(sum)
	})
	g.Get("/:id/movements", func(c *fiber.Ctx) error {
		out, err := svcs.Inventory.Movements(c.Context(), c.Params("id"), c.QueryInt("limit", 20))
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(out)
	})
	g.Get("/:id/forecast", func(c *fiber.Ctx) error {
		f, err := svcs.Inventory.Forecast(c.Context(), c.Params("id"))
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(f)
	})

	g.Post("/movements", func(c *fiber.Ctx) error {
		var mv domain.StockMovement
		if err := c.BodyParser(&mv); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		id, err := svcs.Inventory.RecordStockMovement(c.Context(), mv)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})
	g.Post("/receive", func(c *fiber.Ctx) error {
		var body struct {
			ItemID     string  `json:"item_id"`
			Quantity   float64 `json:"quantity"`
			Location   string  `json:"location"`
			Reason     string  `json:"reason"`
			OperatorID string  `json:"operator_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		id, err := svcs.Inventory.ReceiveStock(c.Context(), body.ItemID, body.Quantity, body.Location, body.Reason, body.OperatorID)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})
	g.Post("/consume", func(c *fiber.Ctx) error {
		var body struct {
			ItemID     string  `json:"item_id"`
			Quantity   float64 `json:"quantity"`
			OrderID    string  `json:"order_id"`
			OperatorID string  `json:"operator_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		id, err := svcs.Inventory.ConsumeStock(c.Context(), body.ItemID, body.Quantity, body.OrderID, body.OperatorID)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})
	g.Post("/adjust", func(c *fiber.Ctx) error {
		var body struct {
			ItemID     string  `json:"item_id"`
			Quantity   float64 `json:"quantity"` // signed
			Reason     string  `json:"reason"`
			OperatorID string  `json:"operator_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		id, err := svcs.Inventory.AdjustStock(c.Context(), body.ItemID, body.Quantity, body.Reason, body.OperatorID)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})
	g.Post("/transfer", func(c *fiber.Ctx) error {
		var body struct {
			ItemID     string  `json:"item_id"`
			Quantity   float64 `json:"quantity"`
			From       string  `json:"from"`
			To         string  `json:"to"`
			OperatorID string  `json:"operator_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		id, err := svcs.Inventory.TransferStock(c.Context(), body.ItemID, body.Quantity, body.From, body.To, body.OperatorID)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})
}

func registerProduction(app *fiber.App, svcs *service.Services) {
	g := app.Group("/production")

	g.Get("/metrics", func(c *fiber.Ctx) error {
		out, err := svcs.Production.AllMetrics(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(out)
	})
	g.Get("/metrics/:id", func(c *fiber.Ctx) error {
		m, err := svcs.Production.Metrics(c.Context(), c.Params("id"))
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(m)
	})
	g.Get("/summary", func(c *fiber.Ctx) error {
		sum, err := svcs.Production.Summary(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(sum)
	})
	g.Post("/refresh", func(c *fiber.Ctx) error {
		svcs.Production.ForceProductionUpdate(c.Context())
		return c.JSON(fiber.Map{"ok": true})
	})
}

func registerAnalytics(app *fiber.App, svcs *service.Services) {
	g := app.Group("/analytics")

	g.Get("/kpis", func(c *fiber.Ctx) error {
		out, err := svcs.Analytics.KPIs(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(out)
	})
	g.Get("/production", func(c *fiber.Ctx) error {
		pa, err := svcs.Analytics.Production(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(pa)
	})
	g.Get("/operational", func(c *fiber.Ctx) error {
		oa, err := svcs.Analytics.Operational(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(oa)
	})
	g.Get("/predictive", func(c *fiber.Ctx) error {
		pa, err := svcs.Analytics.Predictive(c.Context())
		if err != nil { return c.Status(500).JSON(fiber.Map{"error": err.Error()}) }
		return c.JSON(pa)
	})
	g.Post("/kpis/refresh", func(c *fiber.Ctx) error {
		svcs.Analytics.ForceKPIUpdate(c.Context())
		return c.JSON(fiber.Map{"ok": true})
	})
	g.Post("/reports", func(c *fiber.Ctx) error {
		var body struct {
			From time.Time `json:"from"`
			To   time.Time `json:"to"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		report, err := svcs.Analytics.GenerateCustomReport(c.Context(), body.From, body.To)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(report)
	})
}

// wsMessage is the inbound client frame. The first frame must be an auth;
// subscribe frames may follow to join entity-scoped groups.
type wsMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Scope  string `json:"scope"`
}

func serveWS(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		client := h.Register(conn)
		defer h.Unregister(client)

		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case "auth":
				h.Authenticate(r.Context(), client, msg.UserID, msg.Role)
			case "subscribe":
				if msg.Scope != "" {
					h.Subscribe(client, msg.Scope)
				}
			}
		}
	}
}
