package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"whatsapp-connector/internal/config"
	"whatsapp-connector/internal/database"
	"whatsapp-connector/internal/handlers"
	"whatsapp-connector/internal/middleware"
	"whatsapp-connector/internal/repositories"
	"whatsapp-connector/internal/websocket"
	"whatsapp-connector/internal/whatsapp"
	"whatsapp-connector/pkg/logger"
)

func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting WhatsApp connector...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db.SqlDB); err != nil {
		log.Fatal("Failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectionRepo := repositories.NewConnectionRepository(db.DB)

	wsManager := websocket.NewManager(log)
	go wsManager.Run(ctx)

	clientFactory := whatsapp.NewClientFactory(cfg, log)
	sessionManager := whatsapp.NewSessionManager(cfg, connectionRepo, clientFactory, wsManager, log)
	if err := sessionManager.Start(ctx); err != nil {
		log.Error("Failed to start session manager: %v", err)
	}

	whatsappHandler := handlers.NewWhatsAppHandler(sessionManager, log)
	websocketHandler := handlers.NewWebSocketHandler(wsManager, cfg, log)
	healthHandler := handlers.NewHealthHandler(db)

	router := setupRouter(cfg, whatsappHandler, websocketHandler, healthHandler, log)

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sessionManager.Stop()
	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server shutdown complete")
}

func setupRouter(
	cfg *config.Config,
	whatsappHandler *handlers.WhatsAppHandler,
	websocketHandler *handlers.WebSocketHandler,
	healthHandler *handlers.HealthHandler,
	log *logger.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORSMiddleware(cfg))

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group(cfg.Server.BasePath)
	v1.Use(middleware.AuthMiddleware(cfg))
	{
		wa := v1.Group("/whatsapp")
		{
			wa.POST("/init-session", whatsappHandler.InitSession)
			wa.GET("/status", whatsappHandler.GetStatus)
			wa.GET("/qrcode", whatsappHandler.GetQRCode)
			wa.POST("/disconnect", whatsappHandler.Disconnect)
			wa.GET("/chats", whatsappHandler.GetChats)
			wa.GET("/contacts", whatsappHandler.GetContacts)
			wa.GET("/messages/:chatId", whatsappHandler.GetMessages)
			wa.POST("/send-message", whatsappHandler.SendMessage)
			wa.POST("/restore-session", whatsappHandler.RestoreSession)
			wa.GET("/events", websocketHandler.Stream)
		}
	}

	return router
}
