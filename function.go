// Package directoryadmin exposes the admin API as a plain http.Handler for
// serverless deployment. The routes are the same set the long-running server
// mounts; only the transport differs.
package directoryadmin

import (
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"DirectoryAdmin/internal/bootstrap"
	"DirectoryAdmin/internal/config"
	"DirectoryAdmin/internal/directory"
	"DirectoryAdmin/internal/portal"
	"DirectoryAdmin/internal/store"
	pkg "DirectoryAdmin/pkg/routes"
)

var (
	appOnce sync.Once
	app     *echo.Echo
	appErr  error
)

func buildApp() (*echo.Echo, error) {
	bootstrap.Loadenv()

	client, err := config.ConnectMongo(os.Getenv("MONGO_URI"))
	if err != nil {
		return nil, err
	}
	config.UniquePrincipalEmailIndex(client.Database.Collection("principals"))

	emailService := config.NewEmailServiceStandalone(config.NewResendConfig())
	st := store.NewMongoStore(client.Database)
	ids := pkg.NewIdentityProvider(client.Database, emailService)
	dirService := directory.NewService(st, ids)
	portalService := pkg.NewPortalService(ids, dirService, emailService)

	e := echo.New()
	e.Use(echomw.CORS())
	pkg.RegisterRoutes(e, directory.NewHandler(dirService), portal.NewHandler(portalService))
	return e, nil
}

// API is the serverless entrypoint. The Echo app and its Mongo connection
// are built once per instance and reused across invocations.
func API(w http.ResponseWriter, r *http.Request) {
	appOnce.Do(func() {
		app, appErr = buildApp()
	})
	if appErr != nil {
		log.Println("Failed to initialize function:", appErr)
		http.Error(w, "initialization failure", http.StatusInternalServerError)
		return
	}
	app.ServeHTTP(w, r)
}
