package httpserver

import (
	"net/http"

	"lv-goldex/internal/commission"
	"lv-goldex/internal/delivery"
	"lv-goldex/internal/health"
	"lv-goldex/internal/ledger"
	"lv-goldex/internal/metrics"
	"lv-goldex/internal/notify"
	"lv-goldex/internal/orders"
	"lv-goldex/internal/pricing"
	"lv-goldex/internal/settlement"
	"lv-goldex/internal/tradingmode"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	Tokens        TokenParser
	Users         IdentityRecorder
	Ledger        *ledger.Handler
	Orders        *orders.Handler
	Settlement    *settlement.Handler
	Delivery      *delivery.Handler
	Prices        *pricing.Handler
	Mode          *tradingmode.Handler
	Commission    *commission.Handler
	Notifications *notify.Handler
	Health        *health.Handler
	WS            http.Handler
	Metrics       *metrics.Metrics
	MetricsExport http.Handler
	Limiter       *RateLimiter
	Origin        string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(CORS(d.Origin))
	r.Use(SecurityHeaders)
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}
	r.Use(d.Metrics.Middleware)

	r.Get("/health", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)
	if d.MetricsExport != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsExport)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/prices", d.Prices.List)
		r.Get("/system/mode", d.Mode.Get)
		if d.WS != nil {
			r.Get("/ws", d.WS.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Tokens, d.Users))
			r.Get("/wallets", userFunc(d.Ledger.Wallets))
			r.Post("/wallets", userFunc(d.Ledger.OpenWallet))
			r.Get("/wallets/{id}/verify", userFunc(d.Ledger.VerifyWallet))
			r.Get("/transactions", userFunc(d.Ledger.Transactions))
			r.Post("/deposits", userFunc(d.Ledger.RequestDeposit))
			r.Post("/withdrawals", userFunc(d.Ledger.Withdraw))
			r.Post("/transfers", userFunc(d.Ledger.Transfer))

			r.Post("/orders", userFunc(d.Orders.Place))
			r.Get("/orders", userFunc(d.Orders.List))
			r.Get("/orders/{id}", userFunc(d.Orders.Get))

			r.Post("/deliveries", userFunc(d.Delivery.Create))
			r.Get("/deliveries", userFunc(d.Delivery.List))

			r.Get("/notifications", userFunc(d.Notifications.List))
			r.Post("/notifications/{id}/read", userFunc(d.Notifications.MarkRead))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(WithAuth(d.Tokens, d.Users))
			r.Use(RequireAdmin)
			r.Get("/orders", d.Orders.AdminList)
			r.Patch("/orders/{id}", userFunc(d.Settlement.TransitionOrder))
			r.Post("/deposits/{id}/approve", userFunc(d.Settlement.ApproveDeposit))
			r.Post("/deposits/{id}/reject", userFunc(d.Settlement.RejectDeposit))
			r.Post("/withdrawals/{id}/confirm", userFunc(d.Settlement.ConfirmWithdraw))
			r.Post("/withdrawals/{id}/reject", userFunc(d.Settlement.RejectWithdraw))
			r.Get("/deliveries", d.Delivery.AdminList)
			r.Patch("/deliveries/{id}", userFunc(d.Delivery.Transition))
			r.Put("/system/mode", userFunc(d.Mode.Set))
			r.Put("/prices/{product}", userFunc(d.Prices.Set))
			r.Get("/commission-rules", d.Commission.List)
		})
	})
	return r
}
