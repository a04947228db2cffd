package main

import (
	"DirectoryAdmin/internal/bootstrap"
	pkg "DirectoryAdmin/pkg/routes"

	"go.uber.org/fx"
)

func main() {
	bootstrap.Loadenv()

	app := fx.New(
		pkg.EchoModules,
	)

	app.Run()
}
