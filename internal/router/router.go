package router

import (
	"fmt"
	"log"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/mahfuz-dev/clipfeed/backend/internal/feed"
	"github.com/mahfuz-dev/clipfeed/backend/internal/handlers"
	"github.com/mahfuz-dev/clipfeed/backend/internal/media"
	"github.com/mahfuz-dev/clipfeed/backend/internal/middleware"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"github.com/mahfuz-dev/clipfeed/backend/internal/persist"
	"github.com/mahfuz-dev/clipfeed/backend/internal/repositories"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
	"github.com/mahfuz-dev/clipfeed/backend/pkg/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Logger())
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	log.Println("Global middleware configured.")
}

// BuildDocumentStore picks the document store backend from configuration.
func BuildDocumentStore(cfg *config.Config, db *config.DB) (store.DocumentStore, error) {
	switch cfg.StoreBackend {
	case "mongo":
		if db.Mongo == nil {
			return nil, fmt.Errorf("mongo backend selected but no mongo connection")
		}
		return store.NewMongoStore(db.Mongo.Database(cfg.MongoDatabase)), nil
	case "rest":
		if cfg.RestEndpoint == "" || cfg.RestProject == "" {
			return nil, fmt.Errorf("rest backend selected but REST_STORE_ENDPOINT/REST_STORE_PROJECT not set")
		}
		return store.NewRestStore(store.RestConfig{
			Endpoint:   cfg.RestEndpoint,
			Project:    cfg.RestProject,
			APIKey:     cfg.RestAPIKey,
			DatabaseID: cfg.RestDatabaseID,
		}), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// buildMediaResolver wires the optional object-storage signer. Without
// object storage the feed still serves posts that carry direct URLs.
func buildMediaResolver(cfg *config.Config) *media.Resolver {
	if cfg.MinioEndpoint == "" {
		log.Println("No object storage configured; file-only posts will be skipped.")
		return media.NewResolver(nil)
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		log.Printf("Object storage init failed, continuing without: %v", err)
		return media.NewResolver(nil)
	}
	log.Println("Object storage signer configured.")
	return media.NewResolver(media.NewMinioSigner(client, cfg.MinioBucket))
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, cfg *config.Config, db *config.DB, docStore store.DocumentStore, firebaseAuthClient *auth.Client) error {
	// AutoMigrate PostgreSQL models
	if err := db.Postgres.AutoMigrate(&models.User{}, &models.PlaybackPref{}); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	log.Println("PostgreSQL auto-migrations completed.")

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"message": "Hello, World!"})
	})

	resolver := schema.NewResolver(docStore, map[schema.Kind]string{
		schema.KindPost:        cfg.PostsCollection,
		schema.KindLike:        cfg.LikesCollection,
		schema.KindFollow:      cfg.FollowsCollection,
		schema.KindComment:     cfg.CommentsCollection,
		schema.KindCommentLike: cfg.CommentLikesCollection,
	})
	adapter := persist.NewAdapter(docStore, resolver)
	mediaResolver := buildMediaResolver(cfg)
	pager := feed.NewPager(adapter, mediaResolver)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(db.Postgres)
	prefRepo := repositories.NewPostgresPlaybackPrefRepository(db.Postgres)

	// --- Unprotected routes ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(userRepo, firebaseAuthClient)
	authHandler.RegisterAuthRoutes(authGroup)
	log.Println("Auth routes configured.")

	public := e.Group("/api/v1")
	feedHandler := handlers.NewFeedHandler(pager, adapter)
	feedHandler.RegisterFeedRoutes(public)

	// The feed socket authenticates itself from a token query parameter.
	socketHandler := handlers.NewFeedSocketHandler(feed.SessionConfig{
		Store:    docStore,
		Resolver: resolver,
		Adapter:  adapter,
		Media:    mediaResolver,
	}, pager, prefRepo)
	socketHandler.RegisterFeedSocketRoutes(public)
	log.Println("Feed routes configured.")

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware())
	log.Println("JWT authentication middleware applied to /api/v1 group.")

	feedHandler.RegisterAuthedFeedRoutes(api)

	userHandler := handlers.NewUserHandler(userRepo)
	userHandler.RegisterProfileRoutes(api)
	log.Println("User profile routes configured.")

	prefHandler := handlers.NewPrefHandler(prefRepo)
	prefHandler.RegisterPrefRoutes(api)
	log.Println("Playback preference routes configured.")

	log.Println("All routes configured.")
	return nil
}
