package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/picada-pos/api/internal/config"
	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/enum"
	"github.com/picada-pos/api/internal/handler"
	mw "github.com/picada-pos/api/internal/middleware"
	"github.com/picada-pos/api/internal/service"
	"github.com/picada-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Printer-Token"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// Kitchen display sockets (auth via query param token)
	r.Get("/ws/kds/{channel}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Shared services
	emissionLock := service.NewEmissionLock(cfg.EmissionLockWindow)
	totals := service.NewTotalsEngine(queries)
	tickets := service.NewTicketService(queries, emissionLock, cfg.KDSChannels, hub)
	payments := service.NewPaymentService(pool, func(db database.DBTX) service.PaymentStore {
		return database.New(db)
	})
	tables := service.NewTableService(pool, func(db database.DBTX) service.ClaimStore {
		return database.New(db)
	})

	// Printer agent routes (shared-token auth, no JWT)
	r.Group(func(r chi.Router) {
		r.Use(mw.PrinterAuth(cfg.PrinterToken))
		printJobHandler := handler.NewPrintJobHandler(queries)
		printJobHandler.RegisterRoutes(r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Floor and order editing: waiters and cashiers
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleWaiter, enum.UserRoleCashier, enum.UserRoleAdmin))

			catalogHandler := handler.NewCatalogHandler(queries)
			catalogHandler.RegisterRoutes(r)

			tableHandler := handler.NewTableHandler(queries, tables)
			tableHandler.RegisterRoutes(r)

			orderHandler := handler.NewOrderHandler(queries, totals, tickets)
			orderHandler.RegisterRoutes(r)

			kdsHandler := handler.NewKDSHandler(queries, hub)
			kdsHandler.RegisterRoutes(r)
		})

		// Money movements: cashiers only
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleCashier, enum.UserRoleAdmin))

			paymentHandler := handler.NewPaymentHandler(queries, payments, tickets)
			paymentHandler.RegisterRoutes(r)

			printingHandler := handler.NewPrintingHandler(tickets, tickets, totals)
			printingHandler.RegisterRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
