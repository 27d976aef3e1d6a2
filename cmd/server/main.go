package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"shopsense/internal/config"
	"shopsense/internal/handlers"
	"shopsense/internal/logging"
	"shopsense/internal/middleware"
	"shopsense/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting shopsense server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// Redis holds every history stream; without it there is nothing to serve.
	redisService, err := services.NewRedisService(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisService.Close()
	rdb := redisService.Client()

	// Search engine is optional: retrieval degrades to empty results while
	// it is down, and the rest of the service keeps working.
	searchService, err := services.NewSearchService(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to create search client: %v", err)
	}
	if searchService.IsAvailable(context.Background()) {
		if err := searchService.EnsureIndices(context.Background()); err != nil {
			log.Printf("⚠️ Failed to ensure search indices: %v", err)
		}
	}

	embeddingService := services.NewEmbeddingService(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.SearchTimeout)
	llmService := services.NewLLMService(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)

	// Stats and popularity are shared concerns behind the history stores.
	statsService := services.NewStatsService(rdb, cfg.StatsTTL)
	popularRequirements := services.NewPopularityService(rdb, "popular_requirements", cfg.PopularRequirementsCap, cfg.PopularPrefixLen, cfg.PopularityTTL)
	popularQuestions := services.NewPopularityService(rdb, "popular_questions", cfg.PopularQuestionsCap, cfg.PopularPrefixLen, cfg.PopularityTTL)

	recommendationStore := services.NewRecommendationStore(rdb, cfg.MaxRecommendations, cfg.HistoryTTL, statsService, popularRequirements)
	conversationStore := services.NewConversationStore(rdb, cfg.MaxConversations, cfg.HistoryTTL, statsService, popularQuestions)
	behaviorStore := services.NewBehaviorStore(rdb, cfg.MaxRecentViews, cfg.HistoryTTL, statsService)
	log.Println("✅ History stores initialized")

	orchestrator := services.NewRetrievalOrchestrator(searchService, embeddingService, llmService, conversationStore, services.OrchestratorConfig{
		KnowledgeIndex:     cfg.KnowledgeIndex,
		ConversationsIndex: cfg.ConversationsIndex,
		SemanticBoost:      cfg.SemanticBoost,
		TopK:               cfg.FusionTopK,
		ContextCharsPerHit: cfg.ContextCharsPerHit,
		MaxSources:         cfg.MaxSources,
		QuestionTrim:       cfg.QuestionTrim,
	})
	log.Println("✅ Retrieval orchestrator initialized")

	// Hot-product cache, warmed now and refreshed on a schedule.
	productCache := services.NewProductCacheService(cfg.HotProductsTTL, cfg.ProductDetailTTL)
	productSource := services.NewESProductSource(searchService, cfg.ProductsIndex)
	if err := productCache.Refresh(context.Background(), productSource); err != nil {
		log.Printf("⚠️ Initial hot-product warm-up failed: %v", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.HotProductsRefresh),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.SearchTimeout)
			defer cancel()
			_ = productCache.Refresh(ctx, productSource)
		}),
	); err != nil {
		log.Printf("⚠️ Failed to schedule hot-product refresh: %v", err)
	}
	scheduler.Start()
	log.Printf("⏰ Hot-product refresh scheduled every %s", cfg.HotProductsRefresh)

	// Handlers
	healthHandler := handlers.NewHealthHandler(redisService, searchService)
	ragHandler := handlers.NewRAGHandler(orchestrator, conversationStore, popularQuestions, searchService, cfg.MaxConversations)
	knowledgeHandler := handlers.NewKnowledgeHandler(orchestrator, searchService)
	recommendHandler := handlers.NewRecommendHandler(recommendationStore, popularRequirements, cfg.RequirementTrim, cfg.MaxRecommendations)
	behaviorHandler := handlers.NewBehaviorHandler(behaviorStore, cfg.MaxRecentViews)
	productHandler := handlers.NewProductHandler(productCache)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "shopsense v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second, // LLM answers can take a while
		IdleTimeout:  120 * time.Second,
		BodyLimit:    5 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("shopsense")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,X-User-ID",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", middleware.ResolveSubject())

	rag := api.Group("/rag")
	rag.Post("/ask", ragHandler.Ask)
	rag.Get("/conversations", ragHandler.Conversations)
	rag.Get("/conversations/search", ragHandler.SearchConversations)
	rag.Get("/conversations/stats", ragHandler.ConversationStats)
	rag.Get("/conversations/:id", ragHandler.ConversationDetail)
	rag.Delete("/conversations/:id", ragHandler.DeleteConversation)
	rag.Delete("/conversations", ragHandler.ClearConversations)
	rag.Get("/questions/popular", ragHandler.PopularQuestions)
	rag.Get("/questions/similar", ragHandler.SimilarQuestions)
	rag.Post("/knowledge", knowledgeHandler.Index)
	rag.Get("/knowledge/count", knowledgeHandler.Count)
	rag.Delete("/knowledge/:id", knowledgeHandler.Delete)

	rec := api.Group("/recommendations")
	rec.Post("/", recommendHandler.Save)
	rec.Get("/", recommendHandler.List)
	rec.Get("/search", recommendHandler.Search)
	rec.Get("/stats", recommendHandler.Stats)
	rec.Get("/preferences", recommendHandler.Preferences)
	rec.Put("/preferences", recommendHandler.SetPreferences)
	rec.Get("/:id", recommendHandler.Detail)
	rec.Delete("/:id", recommendHandler.Delete)
	rec.Delete("/", recommendHandler.Clear)
	api.Get("/requirements/popular", recommendHandler.PopularRequirements)

	behavior := api.Group("/behavior")
	behavior.Post("/", behaviorHandler.Record)
	behavior.Get("/recent", behaviorHandler.RecentViews)
	behavior.Get("/stats", behaviorHandler.Stats)
	behavior.Delete("/", behaviorHandler.Clear)

	products := api.Group("/products")
	products.Get("/hot", productHandler.HotProducts)
	products.Post("/hot", productHandler.Warm)
	products.Get("/:id", productHandler.Detail)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := scheduler.Shutdown(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	log.Printf("✅ Server ready on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
