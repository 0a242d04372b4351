package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-contrib/sessions"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/cascade"
	"github.com/yukikurage/tasker/internal/config"
	"github.com/yukikurage/tasker/internal/constants"
	"github.com/yukikurage/tasker/internal/database"
	"github.com/yukikurage/tasker/internal/events"
	"github.com/yukikurage/tasker/internal/handlers"
	"github.com/yukikurage/tasker/internal/identity"
	"github.com/yukikurage/tasker/internal/middleware"
	"github.com/yukikurage/tasker/internal/prefs"
	"github.com/yukikurage/tasker/internal/realtime"
	"github.com/yukikurage/tasker/internal/repository"
	"github.com/yukikurage/tasker/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	db := database.GetDB()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Change feed, mirrored through Pub/Sub when configured
	broker := realtime.NewBroker()
	var relay *realtime.PubSubRelay
	if cfg.PubSubProjectID != "" {
		var err error
		relay, err = realtime.NewPubSubRelay(ctx, cfg.PubSubProjectID, cfg.PubSubTopic, cfg.FirebaseCredentialsFile, broker)
		if err != nil {
			log.Fatalf("Failed to create Pub/Sub relay: %v", err)
		}
		broker.SetForwarder(relay)
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[pubsub] Relay stopped: %v", err)
			}
		}()
	}

	// Identity provider. Without it sign-in and user hard deletes are refused.
	var provider *identity.FirebaseProvider
	if cfg.FirebaseProjectID != "" {
		var err error
		provider, err = identity.NewFirebaseProvider(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			log.Fatalf("Failed to initialize identity provider: %v", err)
		}
	}
	var verifier identity.Verifier
	var deleter identity.Deleter
	if provider != nil {
		verifier, deleter = provider, provider
	}

	// Preference store
	var prefStore prefs.Store = prefs.NewGormStore(db)
	var redisClient *redis.Client
	if cfg.PrefsBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		prefStore = prefs.NewRedisStore(redisClient, constants.RedisPrefsPrefix)
	}

	bus := events.NewMemoryBus()

	// Repositories and services
	taskRepo := repository.NewTaskRepository(db, broker)
	userRepo := repository.NewUserRepository(db)
	authService := services.NewAuthService(userRepo, verifier)
	taskService := services.NewTaskService(taskRepo, bus)
	manager := cascade.NewManager(cascade.DefaultRegistry(), cascade.NewGormStore(db), bus, broker, deleter)

	opts := calendar.DefaultOptions()
	opts.RecentWindow = cfg.CalendarRecentWindow
	opts.PauseWindow = cfg.CalendarPauseWindow
	opts.HydrateDelay = cfg.CalendarHydrateDelay
	calendars := calendar.NewRegistry(taskRepo, broker, bus, opts)
	keeper := calendar.NewPreferenceKeeper(prefStore, cfg.PrefsWriteDelay)

	// Initialize Gin router
	r := gin.Default()

	// Setup session middleware with Redis
	store, err := redisStore.NewStore(
		10,              // Redis pool size
		"tcp",           // network type
		cfg.RedisAddr(), // Redis address from config
		"",              // username (empty for default user)
		"",              // password (empty = no password)
		[]byte(cfg.SessionSecret),
	)
	if err != nil {
		log.Fatalf("Failed to create Redis store: %v", err)
	}
	isProduction := cfg.GinMode == "release"
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   constants.SessionMaxAge,
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	taskHandler := handlers.NewTaskHandler(taskService)
	trashHandler := handlers.NewTrashHandler(manager)
	calendarHandler := handlers.NewCalendarHandler(calendars, keeper)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Tasker API is running",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/session", authHandler.CreateSession)
			auth.DELETE("/session", authHandler.DeleteSession)
			auth.GET("/me", middleware.RequireAuth(), authHandler.GetCurrentUser)
		}

		// Task routes (protected)
		tasks := api.Group("/tasks")
		tasks.Use(middleware.RequireAuth())
		{
			tasks.POST("", taskHandler.CreateTask)
			tasks.GET("/:id", middleware.RequireTask(taskRepo), taskHandler.GetTask)
			tasks.PATCH("/:id", middleware.RequireTask(taskRepo), taskHandler.UpdateTask)
		}

		// Lifecycle routes (protected)
		protected := api.Group("")
		protected.Use(middleware.RequireAuth())
		{
			protected.DELETE("/entities/:entity/:id", trashHandler.SoftDelete)
			protected.GET("/trash/:entity", trashHandler.ListTrash)
			protected.POST("/trash/:entity/:id/restore", trashHandler.Restore)
			protected.DELETE("/trash/:entity/:id", trashHandler.HardDelete)
			protected.POST("/lookups/:lookup/:id/replace", trashHandler.ReplaceReferences)
		}

		// Calendar routes (protected)
		cal := api.Group("/calendar")
		cal.Use(middleware.RequireAuth())
		{
			cal.GET("/day", calendarHandler.Day)
			cal.GET("/week", calendarHandler.Week)
			cal.POST("/move", calendarHandler.Move)
			cal.POST("/tasks/:id/toggle", calendarHandler.Toggle)
			cal.GET("/preferences", calendarHandler.GetPreferences)
			cal.PUT("/preferences", calendarHandler.PutPreferences)
		}
	}

	// Start server
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	operations := map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
		"calendars": func(ctx context.Context) error {
			calendars.Close()
			return keeper.Flush(ctx)
		},
	}
	if relay != nil {
		operations["pubsub-relay"] = func(ctx context.Context) error {
			cancel()
			return relay.Close(ctx)
		}
	}
	if redisClient != nil {
		operations["redis"] = func(ctx context.Context) error {
			return redisClient.Close()
		}
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, operations)
	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
