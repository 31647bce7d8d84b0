package httpserver

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gabigallardo/control-panel/internal/app"
	"github.com/gabigallardo/control-panel/internal/billing"
	"github.com/gabigallardo/control-panel/internal/fallback"
	"github.com/gabigallardo/control-panel/internal/httpserver/httputil"
	dashboardsvc "github.com/gabigallardo/control-panel/internal/services/dashboard"
)

const unconfiguredBillingMessage = "OPENAI_ADMIN_KEY no configurada: datos mock"

type seriesPoint struct {
	Label  string  `json:"label"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

type dayCost struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

type mockBillingResponse struct {
	IsMock  bool             `json:"isMock"`
	Message string           `json:"message"`
	Reason  fallback.Reason  `json:"reason"`
	Range   billing.RangeKey `json:"range"`
}

type billingResponse struct {
	IsMock          bool                      `json:"isMock"`
	Range           billing.RangeKey          `json:"range"`
	AccumulatedCost float64                   `json:"accumulatedCost"`
	Series          []seriesPoint             `json:"series"`
	ModelBreakdown  []dashboardsvc.ModelUsage `json:"modelBreakdown"`
	CostByDay       []dayCost                 `json:"costByDay"`
	GeneratedAt     *time.Time                `json:"generatedAt,omitempty"`
}

type apiHandler struct {
	container *app.Container
	logger    *slog.Logger
}

func registerAPIRoutes(app *fiber.App, container *app.Container) {
	logger := container.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &apiHandler{container: container, logger: logger}

	api := app.Group("/api")
	api.Get("/dashboard", h.dashboard)
	api.Get("/openai/billing", h.billing)
}

func (h *apiHandler) dashboard(c *fiber.Ctx) error {
	if h.container.Dashboard == nil {
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "dashboard service unavailable")
	}
	key := billing.ParseRangeKey(c.Query("range"))
	h.logger.Debug("dashboard request", "range", key, "request_id", c.GetRespHeader(fiber.HeaderXRequestID))

	metrics := h.container.Dashboard.Metrics(c.UserContext(), key)
	return c.JSON(metrics)
}

func (h *apiHandler) billing(c *fiber.Ctx) error {
	if h.container.Dashboard == nil {
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "billing service unavailable")
	}
	key := billing.ParseRangeKey(c.Query("range"))
	h.logger.Debug("billing request", "range", key, "request_id", c.GetRespHeader(fiber.HeaderXRequestID))

	res := h.container.Dashboard.Billing(c.UserContext(), key)
	if !res.Ok() {
		return c.JSON(mockBillingResponse{
			IsMock:  true,
			Message: mockMessage(res.Reason),
			Reason:  res.Reason,
			Range:   key,
		})
	}
	return c.JSON(toBillingResponse(res.Value))
}

func mockMessage(reason fallback.Reason) string {
	if reason == fallback.ReasonUnconfigured {
		return unconfiguredBillingMessage
	}
	return "billing data unavailable: " + string(reason)
}

func toBillingResponse(data billing.Data) billingResponse {
	resp := billingResponse{
		Range:           data.Range,
		AccumulatedCost: data.AccumulatedCost.InexactFloat64(),
		Series:          make([]seriesPoint, 0, len(data.Series)),
		ModelBreakdown:  dashboardsvc.ModelDistribution(data.ModelBreakdown),
		CostByDay:       make([]dayCost, 0, len(data.CostByDay)),
	}
	for _, p := range data.Series {
		resp.Series = append(resp.Series, seriesPoint{Label: p.Label, Tokens: p.Tokens, Cost: p.Cost.InexactFloat64()})
	}
	for _, d := range data.CostByDay {
		resp.CostByDay = append(resp.CostByDay, dayCost{Date: d.Date, Cost: d.Cost.InexactFloat64()})
	}
	if !data.GeneratedAt.IsZero() {
		generated := data.GeneratedAt
		resp.GeneratedAt = &generated
	}
	return resp
}
