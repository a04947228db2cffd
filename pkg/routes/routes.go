package pkg

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"

	"DirectoryAdmin/internal/config"
	"DirectoryAdmin/internal/directory"
	"DirectoryAdmin/internal/identity"
	"DirectoryAdmin/internal/portal"
	"DirectoryAdmin/internal/store"
	"DirectoryAdmin/pkg/middleware"
)

var EchoModules = fx.Module("echo",
	fx.Provide(NewEchoServer),
	fx.Provide(config.NewMongoDBConfig),
	fx.Provide(config.NewMongoDBClient),
	fx.Provide(config.NewResendConfig),
	fx.Provide(config.NewEmailService),
	fx.Provide(NewStore),
	fx.Provide(NewIdentityProvider),
	fx.Provide(directory.NewService),
	fx.Provide(directory.NewHandler),
	fx.Provide(NewPortalService),
	fx.Provide(portal.NewHandler),
	fx.Invoke(RegisterRoutes))

func NewStore(db *mongo.Database) store.Store {
	return store.NewMongoStore(db)
}

func NewIdentityProvider(db *mongo.Database, emailService *config.EmailService) identity.Provider {
	resetURL := os.Getenv("RESET_URL")
	if resetURL == "" {
		resetURL = "http://localhost:5173/reset-password"
	}
	return identity.NewMongoProvider(db, emailService, resetURL)
}

func NewPortalService(ids identity.Provider, dir *directory.Service, emailService *config.EmailService) *portal.Service {
	return portal.NewService(ids, dir, emailService, os.Getenv("ADMIN_EMAIL"))
}

func NewEchoServer(lc fx.Lifecycle) *echo.Echo {
	e := echo.New()
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"http://localhost:5173"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Println("Server running on http://localhost:" + port)
			go func() {
				if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
					log.Fatal("Failed to start the server:", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("shutting down the server ...")
			return e.Shutdown(ctx)
		},
	})
	return e
}

func RegisterRoutes(e *echo.Echo, dirHandler *directory.Handler, portalHandler *portal.Handler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "directory-admin"})
	})
	e.POST("/login", portalHandler.SignIn)
	e.POST("/auth/state", portalHandler.AuthState)

	protected := e.Group("/api")
	protected.Use(middleware.JWTMiddleware)
	protected.Use(middleware.CasbinMiddleware)

	protected.GET("/profile", portalHandler.Profile)

	protected.GET("/users", dirHandler.ListUsers)
	protected.POST("/users", dirHandler.CreateUser)
	protected.PATCH("/users/:email", dirHandler.UpdateUser)
	protected.PATCH("/users/:email/password", dirHandler.ChangePassword)
	protected.PATCH("/users/:email/disabled", dirHandler.SetDisabled)
	protected.DELETE("/users/:email", dirHandler.DeleteUser)
	protected.POST("/users/:email/login", dirHandler.RecordLogin)
	protected.GET("/users/:email/login-history", dirHandler.LoginHistory)
	protected.POST("/users/:email/reset", dirHandler.SendCredentialReset)

	protected.POST("/repair/duplicates", dirHandler.RemoveDuplicates)
	protected.POST("/repair/role-collections", dirHandler.CleanupRoleCollections)
	protected.POST("/repair/missing", dirHandler.CreateMissingDocument)
	protected.POST("/repair/migrate", dirHandler.MigrateLegacyKeys)
}
