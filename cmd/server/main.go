package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mikeboe/deep-research/pkg/chat"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/pipeline"
	"github.com/mikeboe/deep-research/pkg/server"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	cfg := config.Load()
	ctx := context.Background()

	if err := vectorstore.ValidateTableName(cfg.CollectionName); err != nil {
		log.Fatalf("Invalid collection name: %v", err)
	}

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, database.PoolSize{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx, cfg.CollectionName, cfg.EmbeddingDimensions); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to init research pipeline: %v", err)
	}

	// The learning index and chat both need a Google API key.
	var (
		indexer server.Indexer
		chatSvc *chat.Service
		toolset *chat.LearningToolset
	)
	if cfg.GoogleApiKey != "" {
		embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDimensions)
		if err != nil {
			log.Fatalf("Failed to init embedder: %v", err)
		}
		store, err := vectorstore.NewLearningStore(db.Pool, cfg.CollectionName)
		if err != nil {
			log.Fatalf("Failed to init learning store: %v", err)
		}

		indexer = &server.LearningIndexer{Store: store, Embedder: embedder}
		toolset = chat.NewLearningToolset(store, embedder)
		chatSvc, err = chat.NewService(ctx, db, cfg, toolset)
		if err != nil {
			log.Fatalf("Failed to init chat service: %v", err)
		}
	} else {
		slog.Warn("GOOGLE_API_KEY not set, learning index and chat are disabled")
	}

	svc := server.NewService(server.NewPostgresStore(db), p, indexer, cfg.DefaultBreadth, cfg.DefaultDepth)
	handler := server.NewHandler(svc, chatSvc, toolset)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))

	handler.RegisterRoutes(r)

	slog.Info("Server starting", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
