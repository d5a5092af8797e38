package main

import (
	"download-gate-service/assembly"
	"download-gate-service/conf"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/txix-open/isp-kit/app"
)

// The same gateway served as an AWS Lambda function behind a function URL or HTTP API.
// Counters live as long as the warm instance does.
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
	for _, runner := range assembly.BackgroundRunners() {
		go func() {
			err := runner.Run(application.Context())
			if err != nil {
				logger.Error(application.Context(), err)
			}
		}()
	}

	adapter := httpadapter.NewV2(assembly.Handler())
	lambda.StartWithOptions(adapter.ProxyWithContext, lambda.WithContext(application.Context()))
}
