package main

import (
	"download-gate-service/assembly"
	"download-gate-service/conf"

	"github.com/txix-open/isp-kit/app"
	"github.com/txix-open/isp-kit/shutdown"
)

func main() {
	application, err := app.New(app.WithConfigOptions(conf.Options()...))
	if err != nil {
		panic(err)
	}
	logger := application.Logger()

	assembly, err := assembly.New(application)
	if err != nil {
		logger.Fatal(application.Context(), err)
	}
	application.AddRunners(assembly.Runners()...)
	application.AddClosers(assembly.Closers()...)

	shutdown.On(func() {
		logger.Info(application.Context(), "starting shutdown")
		application.Shutdown()
		logger.Info(application.Context(), "shutdown completed")
	})

	err = application.Run()
	if err != nil {
		application.Shutdown()
		logger.Fatal(application.Context(), err)
	}
}
