package http

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/security"
	"leadmarket-backend/internal/service"
)

// Services bundles the application services served over HTTP.
type Services struct {
	Accounts      service.AccountService
	Leads         service.LeadService
	Purchases     service.PurchaseService
	Deposits      service.DepositService
	Ledger        service.LedgerService
	Notifications service.NotificationService
}

type Handler struct {
	svc      Services
	validate *validator.Validate
}

func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// NewRouter wires every route. Route names key into config.RouteSecurityConfig.
// A nil gatherer disables /metrics.
func NewRouter(svc Services, tm security.TokenManager, m *metrics.Metrics, gatherer prometheus.Gatherer) *mux.Router {
	if m == nil {
		m = metrics.NewNop()
	}
	h := NewHandler(svc)

	router := mux.NewRouter()
	router.Use(RecoveryMiddleware, MetricsMiddleware(m), AuthMiddleware(tm))

	router.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet).Name("healthz")
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet).Name("metrics")
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost).Name("auth.register")
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost).Name("auth.login")

	api.HandleFunc("/leads", h.ListLeads).Methods(http.MethodGet).Name("leads.list")
	api.HandleFunc("/leads/{id:[0-9]+}/purchase", h.PurchaseLead).Methods(http.MethodPost).Name("leads.purchase")

	api.HandleFunc("/me/balance", h.MyBalance).Methods(http.MethodGet).Name("me.balance")
	api.HandleFunc("/me/purchases", h.MyPurchases).Methods(http.MethodGet).Name("me.purchases")
	api.HandleFunc("/me/ledger", h.MyLedger).Methods(http.MethodGet).Name("me.ledger")
	api.HandleFunc("/me/notifications", h.MyNotifications).Methods(http.MethodGet).Name("me.notifications")
	api.HandleFunc("/me/notifications/{id:[0-9]+}/read", h.MarkNotificationRead).Methods(http.MethodPost).Name("me.notifications.read")

	api.HandleFunc("/admin/leads", h.CreateLead).Methods(http.MethodPost).Name("admin.leads.create")
	api.HandleFunc("/admin/leads/{id:[0-9]+}", h.UpdateLead).Methods(http.MethodPatch).Name("admin.leads.update")
	api.HandleFunc("/admin/deposits", h.CreateDeposit).Methods(http.MethodPost).Name("admin.deposits.create")
	api.HandleFunc("/admin/purchases/{id:[0-9]+}/refund", h.RefundPurchase).Methods(http.MethodPost).Name("admin.purchases.refund")
	api.HandleFunc("/admin/accounts/{id:[0-9]+}/ledger", h.AccountLedger).Methods(http.MethodGet).Name("admin.accounts.ledger")
	api.HandleFunc("/admin/reconcile", h.Reconcile).Methods(http.MethodPost).Name("admin.reconcile")

	return router
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
