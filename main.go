package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"budget-sync/config"
	"budget-sync/engine"
	"budget-sync/handlers"
	"budget-sync/middleware"
	"budget-sync/realtime"
	"budget-sync/routes"
	"budget-sync/services"
	"budget-sync/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	db, err := config.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	log.Println("✅ Database connected successfully")

	if err := config.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Change fan-out: stores publish locally after their own writes, and the
	// pg listener relays NOTIFY traffic from other instances sharing the
	// database.
	notifier := realtime.NewNotifier()

	if os.Getenv("PG_LISTEN") != "false" {
		pgListener, err := realtime.StartPGListener(os.Getenv("DATABASE_URL"), notifier)
		if err != nil {
			log.Fatal("Failed to start pg listener:", err)
		}
		defer pgListener.Close()
	}

	expenses := store.NewExpenseStore(db, notifier)
	goals := store.NewGoalStore(db, notifier)
	suggestions := store.NewSuggestionStore(db, notifier)
	profiles := store.NewProfileStore(db, notifier)

	subs := engine.NewLifecycleManager(notifier)

	wsHandler := handlers.NewWSHandler()

	dashboards := services.NewDashboardManager(services.Stores{
		Expenses:    expenses,
		Goals:       goals,
		Suggestions: suggestions,
		Profile:     profiles,
	}, subs, wsHandler, config.LoadAlertConfig())
	wsHandler.Dashboards = dashboards

	go schedulePruning(suggestions)

	deps := routes.Deps{
		DB:          db,
		Expenses:    expenses,
		Goals:       goals,
		Suggestions: suggestions,
		Profiles:    profiles,
		Dashboards:  dashboards,
		Generator:   services.NewSuggestionService(suggestions),
		Hub:         wsHandler,
	}

	router := gin.Default()

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	corsConfig := cors.Config{
		AllowOrigins:     []string{frontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
	router.Use(cors.New(corsConfig))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		log.Printf("📨 %s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
		c.Next()
		duration := time.Since(start)
		log.Printf("✅ %s %s - %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration)
	})

	router.Use(middleware.RateLimiter())

	v1 := router.Group("/api/v1")
	{
		routes.SetupAuthRoutes(v1, deps)

		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/ws", wsHandler.HandleWS)
			routes.SetupAccountRoutes(protected, deps)
			routes.SetupEntityRoutes(protected, deps)
			routes.SetupDashboardRoutes(protected, deps)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🚀 Server starting on port %s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// schedulePruning drops unsaved suggestions past their shelf life once a day.
func schedulePruning(suggestions *store.SuggestionStore) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	pruneSuggestions(suggestions)
	for range ticker.C {
		pruneSuggestions(suggestions)
	}
}

func pruneSuggestions(suggestions *store.SuggestionStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pruned, err := suggestions.PruneStale(ctx, 30*24*time.Hour)
	if err != nil {
		log.Printf("❌ Suggestion pruning failed: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("🧹 Pruned %d stale suggestions", pruned)
	}
}
