package assembly_test

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"download-gate-service/assembly"

	"github.com/stretchr/testify/require"
	"github.com/txix-open/isp-kit/app"
	"github.com/txix-open/isp-kit/config"
	"github.com/txix-open/isp-kit/validator"
)

type mapSource map[string]string

func (m mapSource) Config() (map[string]string, error) {
	return m, nil
}

func newApplication(t *testing.T, values mapSource) *app.Application {
	t.Helper()

	application, err := app.New(app.WithConfigOptions(
		config.WithValidator(validator.Default),
		config.WithEnvPrefix("DOWNLOAD_GATE_TEST_"),
		config.WithExtraSource(values),
	))
	require.NoError(t, err)
	return application
}

func freeAddress(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())
	return address
}

func TestAssemblyServesAndShutsDown(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	address := freeAddress(t)
	application := newApplication(t, mapSource{
		"http.address":      address,
		"logging.logLevel":  "debug",
		"rateLimit.shards":  "4",
		"upstream.url":      "http://127.0.0.1:1/api/",
		"upstream.maxRps":   "0",
		"auth.apiKeyHeader": "x-api-key",
	})

	assembly, err := assembly.New(application)
	require.NoError(err)

	runErrs := make(chan error, len(assembly.Runners()))
	for _, runner := range assembly.Runners() {
		go func() {
			runErrs <- runner.Run(context.Background())
		}()
	}

	healthUrl := "http://" + address + "/health"
	require.Eventually(func() bool {
		resp, err := http.Get(healthUrl) // nolint:noctx
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	for _, closer := range assembly.Closers() {
		require.NoError(closer.Close())
	}
	for range assembly.Runners() {
		select {
		case err := <-runErrs:
			require.NoError(err)
		case <-time.After(5 * time.Second):
			require.Fail("runner did not stop after close")
		}
	}

	_, err = http.Get(healthUrl) // nolint:noctx
	require.Error(err)
}

func TestAssemblyRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		values mapSource
	}{
		{name: "unknown auth mode", values: mapSource{"auth.mode": "basic"}},
		{name: "unknown log level", values: mapSource{"logging.logLevel": "verbose"}},
		{name: "window out of range", values: mapSource{"rateLimit.windowInSec": "90000"}},
		{name: "token without secret", values: mapSource{"auth.mode": "token"}},
	}
	for _, c := range cases {
		application := newApplication(t, c.values)
		_, err := assembly.New(application)
		require.Error(t, err, c.name)
	}
}
