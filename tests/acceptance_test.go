// nolint:canonicalheader
package tests

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"download-gate-service/assembly"
	"download-gate-service/conf"
	"download-gate-service/domain"
	"download-gate-service/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/txix-open/isp-kit/http/httpcli"
	"github.com/txix-open/isp-kit/json"
	"github.com/txix-open/isp-kit/test"
)

const (
	tiktokUrl        = "https://www.tiktok.com/@user/video/7000000000000000000"
	upstreamResponse = `{"code":0,"msg":"success","data":{"id":"7000000000000000000","play":"https://cdn/x.mp4"}}`
)

type errorResponse struct {
	Success    bool   `json:"success"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

type upstream struct {
	hits  int32
	delay time.Duration
	srv   *httptest.Server
}

func newUpstream(t *testing.T, delay time.Duration) *upstream {
	u := &upstream{delay: delay}
	release := make(chan struct{})
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.hits, 1)
		if u.delay > 0 {
			select {
			case <-time.After(u.delay):
			case <-release:
				return
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamResponse))
	}))
	t.Cleanup(func() {
		close(release)
		u.srv.Close()
	})
	return u
}

func (u *upstream) Hits() int {
	return int(atomic.LoadInt32(&u.hits))
}

type GatewayTestSuite struct {
	suite.Suite
}

func (s *GatewayTestSuite) gateway(test *test.Test, cfg conf.Local) *httptest.Server {
	require := test.Assert()

	locator := assembly.NewLocator(test.Logger(), httpcli.New(), prometheus.NewRegistry(), nil)
	gate, err := locator.Config(cfg, nil)
	require.NoError(err)

	srv := httptest.NewServer(gate.Handler)
	s.T().Cleanup(srv.Close)
	return srv
}

func (s *GatewayTestSuite) config(upstreamUrl string) conf.Local {
	cfg := conf.Default()
	cfg.Upstream.Url = upstreamUrl
	cfg.Http.RequestLogEnable = true
	return cfg
}

func get(require *require.Assertions, rawUrl string, headers map[string]string) (*http.Response, []byte) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, rawUrl, nil)
	require.NoError(err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(require, req)
}

func do(require *require.Assertions, req *http.Request) (*http.Response, []byte) {
	resp, err := http.DefaultClient.Do(req)
	require.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	return resp, body
}

func downloadUrl(srv *httptest.Server, target string) string {
	return srv.URL + "/tiktok?url=" + url.QueryEscape(target)
}

func clientHeaders() map[string]string {
	return map[string]string{"X-Forwarded-For": uuid.NewString()}
}

func (s *GatewayTestSuite) TestDownloadForwardsUpstreamBody() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	srv := s.gateway(test, s.config(up.srv.URL))

	body, statusCode, err := httpcli.New().Get(srv.URL+"/tiktok").
		QueryParams(map[string]any{"url": tiktokUrl}).
		Header("X-Forwarded-For", uuid.NewString()).
		DoAndReadBody(context.Background())
	require.NoError(err)
	require.Equal(http.StatusOK, statusCode)
	require.JSONEq(upstreamResponse, string(body))
	require.Equal(1, up.Hits())
}

func (s *GatewayTestSuite) TestValidation() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	srv := s.gateway(test, s.config(up.srv.URL))

	for _, target := range []string{"", "https://example.com"} {
		resp, body := get(require, downloadUrl(srv, target), clientHeaders())
		require.Equal(http.StatusBadRequest, resp.StatusCode, target)
		require.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))

		errResp := errorResponse{}
		require.NoError(json.Unmarshal(body, &errResp))
		require.False(errResp.Success)
		require.Equal(-1, errResp.Code)
		require.NotEmpty(errResp.Message)
	}
	require.Zero(up.Hits())
}

func (s *GatewayTestSuite) TestRateLimit() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	srv := s.gateway(test, s.config(up.srv.URL))

	headers := clientHeaders()
	for i := 0; i < 10; i++ {
		resp, _ := get(require, downloadUrl(srv, tiktokUrl), headers)
		require.Equal(http.StatusOK, resp.StatusCode, i)
	}

	resp, body := get(require, downloadUrl(srv, tiktokUrl), headers)
	require.Equal(http.StatusTooManyRequests, resp.StatusCode)
	errResp := errorResponse{}
	require.NoError(json.Unmarshal(body, &errResp))
	require.Positive(errResp.RetryAfter)
	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(err)
	require.Equal(errResp.RetryAfter, retryAfter)
	require.Equal(10, up.Hits())

	resp, _ = get(require, downloadUrl(srv, tiktokUrl), clientHeaders())
	require.Equal(http.StatusOK, resp.StatusCode)
}

func (s *GatewayTestSuite) TestUpstreamTimeoutIsNotRetried() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 5*time.Second)
	cfg := s.config(up.srv.URL)
	cfg.Upstream.TimeoutInSec = 1
	srv := s.gateway(test, cfg)

	start := time.Now()
	resp, body := get(require, downloadUrl(srv, tiktokUrl), clientHeaders())
	require.Less(time.Since(start), 4*time.Second)
	require.Equal(http.StatusInternalServerError, resp.StatusCode)

	errResp := errorResponse{}
	require.NoError(json.Unmarshal(body, &errResp))
	require.False(errResp.Success)
	require.Contains(errResp.Error, "Timeout")
	require.Equal(1, up.Hits())
}

func (s *GatewayTestSuite) TestPreflight() {
	test, require := test.New(s.T())
	srv := s.gateway(test, s.config("http://127.0.0.1:1"))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, srv.URL+"/tiktok", nil)
	require.NoError(err)
	resp, body := do(require, req)

	require.Equal(http.StatusOK, resp.StatusCode)
	require.Empty(body)
	require.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal("GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	require.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "x-client-token")
}

func (s *GatewayTestSuite) TestMethodNotAllowed() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	srv := s.gateway(test, s.config(up.srv.URL))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, downloadUrl(srv, tiktokUrl), strings.NewReader("{}"))
	require.NoError(err)
	resp, _ := do(require, req)
	require.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Zero(up.Hits())
}

func (s *GatewayTestSuite) TestForbiddenReferrer() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	cfg := s.config(up.srv.URL)
	cfg.Gate.AllowedReferrerDomains = []string{"downloader.app"}
	srv := s.gateway(test, cfg)

	headers := clientHeaders()
	headers["Referer"] = "https://evil.com/page"
	resp, _ := get(require, downloadUrl(srv, tiktokUrl), headers)
	require.Equal(http.StatusForbidden, resp.StatusCode)

	headers["Referer"] = "https://www.downloader.app/"
	resp, _ = get(require, downloadUrl(srv, tiktokUrl), headers)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal(1, up.Hits())
}

func (s *GatewayTestSuite) TestTokenMode() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	cfg := s.config(up.srv.URL)
	cfg.Auth.Mode = conf.AuthModeToken
	cfg.Auth.Secret = "shared-secret"
	srv := s.gateway(test, cfg)

	headers := clientHeaders()
	resp, _ := get(require, downloadUrl(srv, tiktokUrl), headers)
	require.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, body := get(require, srv.URL+"/token", headers)
	require.Equal(http.StatusOK, resp.StatusCode)
	tokenResp := domain.TokenResponse{}
	require.NoError(json.Unmarshal(body, &tokenResp))
	require.True(tokenResp.Success)
	require.NotEmpty(tokenResp.Token)
	require.GreaterOrEqual(tokenResp.ExpiresIn, 240)
	require.LessOrEqual(tokenResp.ExpiresIn, 300)

	headers["x-client-token"] = tokenResp.Token
	resp, _ = get(require, downloadUrl(srv, tiktokUrl), headers)
	require.Equal(http.StatusOK, resp.StatusCode)

	other := clientHeaders()
	other["x-client-token"] = tokenResp.Token
	resp, _ = get(require, downloadUrl(srv, tiktokUrl), other)
	require.Equal(http.StatusUnauthorized, resp.StatusCode)
	require.Equal(1, up.Hits())
}

func (s *GatewayTestSuite) TestApiKeyMode() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	cfg := s.config(up.srv.URL)
	cfg.Auth.Mode = conf.AuthModeApiKey
	cfg.Auth.Secret = "api-secret"
	srv := s.gateway(test, cfg)

	headers := clientHeaders()
	resp, _ := get(require, downloadUrl(srv, tiktokUrl), headers)
	require.Equal(http.StatusUnauthorized, resp.StatusCode)

	headers["x-api-key"] = "api-secret"
	resp, _ = get(require, downloadUrl(srv, tiktokUrl), headers)
	require.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = get(require, srv.URL+"/token", headers)
	require.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *GatewayTestSuite) TestHealthAndMetrics() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	srv := s.gateway(test, s.config(up.srv.URL))

	resp, body := get(require, srv.URL+"/health", nil)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.JSONEq(`{"status":"ok"}`, string(body))

	resp, _ = get(require, downloadUrl(srv, tiktokUrl), clientHeaders())
	require.Equal(http.StatusOK, resp.StatusCode)

	resp, body = get(require, srv.URL+"/metrics", nil)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Contains(string(body), `download_gate_admissions_total{outcome="allowed"`)
	require.Contains(string(body), `download_gate_upstream_duration_seconds_count{result="ok"} 1`)
}

func (s *GatewayTestSuite) TestResponseCache() {
	test, require := test.New(s.T())
	up := newUpstream(s.T(), 0)
	cfg := s.config(up.srv.URL)
	cfg.Upstream.CacheTtlInSec = 60
	srv := s.gateway(test, cfg)

	for i := 0; i < 3; i++ {
		resp, body := get(require, downloadUrl(srv, tiktokUrl), clientHeaders())
		require.Equal(http.StatusOK, resp.StatusCode)
		require.JSONEq(upstreamResponse, string(body))
	}
	require.Equal(1, up.Hits())
}

func (s *GatewayTestSuite) TestAdmissionStatsInRedis() {
	test, require := test.New(s.T())
	redisCli := NewRedis(test)
	up := newUpstream(s.T(), 0)

	cfg := s.config(up.srv.URL)
	cfg.Redis = &conf.Redis{Address: redisCli.Address(), Prefix: "download_gate_test:" + uuid.NewString()}
	locator := assembly.NewLocator(test.Logger(), httpcli.New(), prometheus.NewRegistry(), nil)
	gate, err := locator.Config(cfg, redisCli)
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = gate.Recorder.Run(ctx)
	}()
	srv := httptest.NewServer(gate.Handler)
	defer srv.Close()

	headers := clientHeaders()
	for i := 0; i < 11; i++ {
		get(require, downloadUrl(srv, tiktokUrl), headers)
	}

	stats := repository.NewAdmissionStats(redisCli, cfg.RedisPrefix(), time.Minute)
	require.Eventually(func() bool {
		total, err := stats.Total(context.Background())
		return err == nil && total["allowed"] == 10 && total["ratelimited"] == 1
	}, 5*time.Second, 50*time.Millisecond)

	keys, err := redisCli.Keys(context.Background(), cfg.RedisPrefix()+":*").Result()
	require.NoError(err)
	require.NoError(redisCli.Del(context.Background(), keys...).Err())
}

func TestGatewayTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(GatewayTestSuite))
}
