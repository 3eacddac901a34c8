package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/financii/backend/docs"
	"github.com/financii/backend/internal/config"
	"github.com/financii/backend/internal/database"
	"github.com/financii/backend/internal/handlers"
	mW "github.com/financii/backend/internal/middleware"
	"github.com/financii/backend/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Financii Bookkeeping API
// @version 1.0
// @description Personal-finance bookkeeping backend
// @host localhost:8080
// @BasePath /
// @schemes http https

func main() {
	config.Init()
	serverConfig := config.LoadServerConfig()

	docs.SwaggerInfo.Title = "Financii Bookkeeping API"
	docs.SwaggerInfo.Description = "Personal-finance bookkeeping backend"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:" + serverConfig.Port
	docs.SwaggerInfo.BasePath = "/"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	authService := services.NewAuthService(db, redisClient)
	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	categoryService := services.NewCategoryService(db)
	transactionService := services.NewTransactionService(db)
	importHandler := handlers.NewImportHandler(db, services.NewImportService(), serverConfig.MaxUploadBytes)

	mW.InitAuthMiddleware(redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(serverConfig.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:"+serverConfig.Port+"/swagger/doc.json"),
	))

	// Public endpoints (no auth required)
	r.Post("/auth/token", authService.Token)
	r.Post("/auth/logout", authService.Logout)
	r.Post("/users", userService.CreateUser)
	r.Get("/users", userService.ListUsers)
	r.Get("/users/{id}", userService.GetUser)
	r.Delete("/users/{id}", userService.DeleteUser)

	// Protected endpoints (auth required)
	r.Group(func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Put("/users/{id}", userService.UpdateUser)

		r.Post("/accounts", accountService.CreateAccount)
		r.Get("/accounts", accountService.ListAccounts)
		r.Get("/accounts/{id}", accountService.GetAccount)
		r.Put("/accounts/{id}", accountService.UpdateAccount)
		r.Delete("/accounts/{id}", accountService.DeleteAccount)

		r.Post("/categories", categoryService.CreateCategory)
		r.Get("/categories", categoryService.ListCategories)
		r.Get("/categories/{id}", categoryService.GetCategory)
		r.Put("/categories/{id}", categoryService.UpdateCategory)
		r.Delete("/categories/{id}", categoryService.DeleteCategory)

		r.Post("/transactions", transactionService.CreateTransaction)
		r.Get("/transactions", transactionService.ListTransactions)
		r.Get("/transactions/total", transactionService.TotalTransactions)
		r.Get("/transactions/{id}", transactionService.GetTransaction)
		r.Put("/transactions/{id}", transactionService.UpdateTransaction)
		r.Delete("/transactions/{id}", transactionService.DeleteTransaction)

		r.Post("/file/upload-csv", importHandler.UploadCSV)
	})

	server := &http.Server{
		Addr:         ":" + serverConfig.Port,
		Handler:      r,
		ReadTimeout:  serverConfig.ReadTimeout,
		WriteTimeout: serverConfig.WriteTimeout,
		IdleTimeout:  serverConfig.IdleTimeout,
	}

	go func() {
		log.Printf("Server starting on :%s", serverConfig.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
