package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinware/clinic-backoffice/internal/billing"
	"github.com/clinware/clinic-backoffice/internal/catalog"
	"github.com/clinware/clinic-backoffice/internal/directory"
	"github.com/clinware/clinic-backoffice/internal/observability/metrics"
	"github.com/clinware/clinic-backoffice/internal/scheduling"
	"github.com/clinware/clinic-backoffice/internal/visit"
)

type RouterConfig struct {
	Patients     *directory.Service
	Appointments *scheduling.Service
	Visits       *visit.Service
	Invoices     *billing.Service
	Catalog      catalog.Repository

	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret string
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(chimw.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(ActorMiddleware(cfg.JWTSecret))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/patients", func(r chi.Router) {
		r.Post("/", registerPatientHandler(cfg.Patients))
		r.Get("/", searchPatientsHandler(cfg.Patients))
		r.Get("/code/{code}", getPatientByCodeHandler(cfg.Patients))
		r.Get("/{id}", getPatientHandler(cfg.Patients))
		r.Put("/{id}", updatePatientHandler(cfg.Patients))
		r.Delete("/{id}", deletePatientHandler(cfg.Patients))
		r.Get("/{id}/appointments", listPatientAppointmentsHandler(cfg.Appointments))
		r.Get("/{id}/visits", listPatientVisitsHandler(cfg.Visits))
		r.Get("/{id}/invoices", listPatientInvoicesHandler(cfg.Invoices))
	})

	r.Get("/doctors", listDoctorsHandler(cfg.Patients))
	r.Get("/doctors/{id}", getDoctorHandler(cfg.Patients))
	r.Get("/services", listServicesHandler(cfg.Catalog))
	r.Get("/services/{id}", getServiceHandler(cfg.Catalog))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Appointments, cfg.Metrics))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Put("/{id}", editAppointmentHandler(cfg.Appointments, cfg.Metrics))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
	})

	r.Route("/visits", func(r chi.Router) {
		r.Post("/", recordVisitHandler(cfg.Visits))
		r.Get("/{id}", getVisitHandler(cfg.Visits))
		r.Put("/{id}", updateVisitHandler(cfg.Visits))
	})

	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", createInvoiceHandler(cfg.Invoices, cfg.Metrics))
		r.Get("/{id}", getInvoiceHandler(cfg.Invoices))
		r.Post("/{id}/pay", payInvoiceHandler(cfg.Invoices))
	})

	return r
}
