package app

import (
	"context"
	"fmt"
	"log"

	"classboard/internal/api"
	"classboard/internal/config"
	"classboard/internal/database"
	"classboard/internal/hub"
	"classboard/internal/roster"
	"classboard/internal/router"
	"classboard/internal/websocket"
	pkgdatabase "classboard/pkg/database"
)

// Application wires every component together. Initialization follows
// strict dependency order:
// Store → Migrations → Roster → Registry → Router → Hub → Websocket → API.
type Application struct {
	config    *config.Config
	store     *database.Store
	roster    *roster.Manager
	registry  *websocket.Registry
	msgRouter *router.Router
	msgHub    *hub.Hub
	apiServer *api.Server
}

// NewApplication builds a ready-to-start application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	store, err := database.NewStore(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	migrations := pkgdatabase.NewMigrationManager(store.GetDB())
	if err := migrations.ApplyMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	validator := pkgdatabase.NewSchemaValidator(store.GetDB())
	if err := validator.ValidateTablesExist(); err != nil {
		store.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	rosterManager := roster.NewManager(store)
	if err := rosterManager.Load(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load class rosters: %w", err)
	}

	registry := websocket.NewRegistry()
	msgRouter := router.NewRouter(store, registry)
	msgHub := hub.NewHub(msgRouter)
	wsHandler := websocket.NewHandler(registry, rosterManager, msgHub)

	apiServer := api.NewServer(api.Options{
		Address: fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
	}, store, rosterManager, msgHub, wsHandler)

	return &Application{
		config:    cfg,
		store:     store,
		roster:    rosterManager,
		registry:  registry,
		msgRouter: msgRouter,
		msgHub:    msgHub,
		apiServer: apiServer,
	}, nil
}

// Start launches the hub and then the HTTP listener. It blocks until the
// listener stops.
func (app *Application) Start() error {
	log.Printf("starting classboard on %s:%d", app.config.HTTP.Host, app.config.HTTP.Port)

	if err := app.msgHub.Start(); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	return app.apiServer.Start()
}

// Stop shuts components down in reverse dependency order:
// HTTP → connections → hub → store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("shutting down classboard")

	if err := app.apiServer.Stop(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.registry.CloseAll()

	if err := app.msgHub.Stop(); err != nil {
		log.Printf("hub shutdown error: %v", err)
	}

	if err := app.store.Close(); err != nil {
		log.Printf("store shutdown error: %v", err)
	}

	log.Printf("shutdown complete")
	return nil
}
