package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/mahfuz-dev/clipfeed/backend/internal/router"
	"github.com/mahfuz-dev/clipfeed/backend/pkg/config"
	"github.com/mahfuz-dev/clipfeed/backend/pkg/firebase"
	"github.com/mahfuz-dev/clipfeed/backend/validators"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB() // Ensure database connections are closed when main exits

	// Pick the document store backend
	docStore, err := router.BuildDocumentStore(cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}

	// Initialize Firebase
	ctx := context.Background()
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	// Create Echo instance
	e := echo.New()

	// Setup global middleware
	router.SetupMiddleware(e)

	// Setup routes and dependencies
	if err := router.SetupRoutes(e, cfg, db, docStore, firebaseApp.AuthClient); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// Validator
	e.Validator = validators.NewValidator()

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
