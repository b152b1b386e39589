package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/borui/borui/internal/auth"
	"github.com/borui/borui/internal/autostart"
	"github.com/borui/borui/internal/bore"
	"github.com/borui/borui/internal/config"
	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/handlers"
	"github.com/borui/borui/internal/logging"
	"github.com/borui/borui/internal/maintenance"
	"github.com/borui/borui/internal/middleware"
	"github.com/borui/borui/internal/notify"
	"github.com/borui/borui/internal/provision"
	"github.com/borui/borui/internal/store"
	"github.com/borui/borui/internal/tunnel"
	"github.com/borui/borui/internal/web"
	"github.com/borui/borui/internal/webhook"
)

// Set with -ldflags at build time.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	config.Load()
	logging.Init()
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	log.Printf("Config: AuthDisabled=%v, ListenAddr=%s, Maintenance=%q",
		config.Cfg.AuthDisabled, config.Cfg.ListenAddr, config.Cfg.MaintenanceSchedule)

	if err := ensureAdmin(); err != nil {
		log.Fatalf("Admin init: %v", err)
	}

	if path := config.Cfg.ProvisionFile; path != "" {
		f, err := provision.Load(path)
		if err != nil {
			log.Fatalf("Provision: %v", err)
		}
		if _, err := provision.Apply(f); err != nil {
			log.Fatalf("Provision: %v", err)
		}
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	st := store.New()
	broadcaster := dashboard.NewBroadcaster(dashboard.DefaultBuffer)
	notifier := webhook.NewNotifier(config.Cfg.WebhookTimeout)
	history := notify.NewHistory()
	dispatcher := notify.New(rootCtx, broadcaster, st, notifier)
	dispatcher.History = history

	mgrCfg := tunnel.ManagerConfig{StopGrace: config.Cfg.StopGrace, Events: dispatcher.Handle}
	servers := tunnel.NewServerManager(tunnel.NewRegistry(), bore.Driver{}, mgrCfg)
	clients := tunnel.NewClientManager(tunnel.NewRegistry(), bore.Driver{}, mgrCfg)

	// Nothing survives a restart; the records must say so before auto-start.
	if n, err := database.ResetStaleStatuses(); err != nil {
		log.Printf("WARNING: reset stale statuses: %v", err)
	} else if n > 0 {
		log.Printf("Reset %d stale tunnel status(es) to stopped", n)
	}

	orch := &autostart.Orchestrator{
		Store:        st,
		Servers:      servers,
		Clients:      clients,
		Broadcaster:  broadcaster,
		StartTimeout: config.Cfg.StartTimeout,
	}
	n, err := orch.Run(rootCtx)
	if err != nil {
		log.Printf("WARNING: auto-start: %v", err)
	}
	log.Printf("Auto-start processed %d tunnel(s)", n)

	limiter := auth.NewLoginLimiter(auth.DefaultLimiterConfig())
	job := &maintenance.Job{
		Servers:     servers,
		Clients:     clients,
		Store:       st,
		Broadcaster: broadcaster,
		Pruners:     []maintenance.Pruner{limiter},
	}
	scheduler, err := maintenance.Schedule(config.Cfg.MaintenanceSchedule, job)
	if err != nil {
		log.Fatalf("Maintenance: %v", err)
	}

	issuer := auth.NewIssuer(config.Cfg.JWTSecret, config.Cfg.TokenTTL)
	handlers.Version = version
	handlers.BuildDate = buildDate
	api := &handlers.API{
		Servers:      servers,
		Clients:      clients,
		Broadcaster:  broadcaster,
		Store:        st,
		Issuer:       issuer,
		Limiter:      limiter,
		History:      history,
		StartTimeout: config.Cfg.StartTimeout,
		LogPath:      config.Cfg.ResolvedLogPath(),
	}

	allow, err := middleware.ParseAllowList(config.Cfg.AllowedIPs)
	if err != nil {
		log.Fatalf("BORUI_ALLOWED_IPS: %v", err)
	}
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: newRouter(api, issuer, allow),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	drain(shutdownCtx, srv, servers, clients)

	// Let disconnect webhooks from StopAll go out, within the same budget.
	delivered := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(delivered)
	}()
	select {
	case <-delivered:
	case <-shutdownCtx.Done():
		log.Println("Abandoning pending webhooks")
	}
	cancelRoot()

	log.Println("Server stopped")
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type stopper interface {
	StopAll()
}

// drain closes the HTTP server before stopping tunnels so no in-flight
// start request can register a handle after StopAll, then records every
// entity as stopped.
func drain(ctx context.Context, srv shutdowner, managers ...stopper) {
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	for _, m := range managers {
		m.StopAll()
	}
	if _, err := database.ResetStaleStatuses(); err != nil {
		log.Printf("Persist stopped statuses: %v", err)
	}
}

func newRouter(api *handlers.API, issuer *auth.Issuer, allow []*net.IPNet) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.AllowIPs(allow))

	r.Route("/api/v1", func(r chi.Router) {
		// No auth
		r.Post("/auth/login", api.Login)
		r.Get("/system/health", api.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(issuer))

			r.Post("/auth/logout", api.Logout)
			r.Get("/auth/me", api.Me)
			r.Post("/auth/refresh", api.Refresh)
			r.Put("/auth/update-username", api.UpdateUsername)
			r.Put("/auth/update-display-name", api.UpdateDisplayName)
			r.Put("/auth/update-password", api.UpdatePassword)

			r.Get("/servers", api.ListServers)
			r.Post("/servers", api.CreateServer)
			r.Get("/servers/{id}", api.GetServer)
			r.Put("/servers/{id}", api.UpdateServer)
			r.Delete("/servers/{id}", api.DeleteServer)
			r.Post("/servers/{id}/start", api.StartServer)
			r.Post("/servers/{id}/stop", api.StopServer)
			r.Get("/servers/{id}/status", api.ServerStatus)
			r.Get("/servers/{id}/events", api.ServerEvents)

			r.Get("/clients", api.ListClients)
			r.Post("/clients", api.CreateClient)
			r.Get("/clients/{id}", api.GetClient)
			r.Put("/clients/{id}", api.UpdateClient)
			r.Delete("/clients/{id}", api.DeleteClient)
			r.Post("/clients/{id}/start", api.StartClient)
			r.Post("/clients/{id}/stop", api.StopClient)
			r.Get("/clients/{id}/status", api.ClientStatus)
			r.Get("/clients/{id}/events", api.ClientEvents)

			r.Get("/system/version", api.Version)
			r.Get("/system/stats", api.Stats)
			r.Get("/system/logs", api.Logs)
		})
	})

	// The token rides in the query string; browsers cannot set headers on
	// a websocket upgrade.
	r.With(middleware.RequireAuth(issuer)).Get("/ws", api.Dashboard)

	spa := middleware.NewSPAHandler(web.Static())
	r.NotFound(spa.ServeHTTP)
	return r
}
