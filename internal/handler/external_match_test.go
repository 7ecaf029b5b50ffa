package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkpool-labs/relaygate/internal/config"
	"github.com/darkpool-labs/relaygate/internal/middleware"
	"github.com/darkpool-labs/relaygate/internal/model"
	"github.com/darkpool-labs/relaygate/internal/repository"
	"github.com/darkpool-labs/relaygate/internal/service"
)

const (
	testKeyID  = "key-1"
	testSecret = "handler-test-secret"
)

type stubForwarder struct {
	resp *service.UpstreamResponse
}

func (s *stubForwarder) Forward(context.Context, string, string, []byte) (*service.UpstreamResponse, error) {
	resp := *s.resp
	return &resp, nil
}

type neverSettled struct{}

func (neverSettled) NullifierSpent(context.Context, common.Hash) (bool, error) {
	return false, nil
}

func newTestRouter(t *testing.T, relayer service.Forwarder) *gin.Engine {
	t.Helper()

	authorizer := service.NewAuthorizer(&config.AuthConfig{
		Keys:            []config.APIKeyConfig{{ID: testKeyID, Secret: testSecret}},
		MaxExpirationMs: 10_000,
	}, nil)

	limiter := service.NewRateLimiter(repository.NewMemoryBucketStore(nil), &config.RateLimitConfig{
		Quote:       config.BucketConfig{Capacity: 100, RefillSeconds: 1},
		Bundle:      config.BucketConfig{Capacity: 100, RefillSeconds: 1},
		Sponsorship: config.BucketConfig{Capacity: 100, RefillSeconds: 1},
	})

	engine, err := service.NewSponsorshipEngine(&config.SponsorshipConfig{}, nil, nil)
	require.NoError(t, err)

	watcher := service.NewSettlementWatcher(neverSettled{}, &config.SettlementConfig{
		PollIntervalMs: 10, DeadlineSeconds: 1,
	}, nil)
	pool := service.NewWorkerPool(1, 16, time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})

	proxy := service.NewProxy(relayer, limiter, engine, watcher, pool,
		service.NewAccountingService(nil), 0)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	api := r.Group("/")
	api.Use(middleware.AuthMiddleware(authorizer))
	NewExternalMatchHandler(proxy).RegisterRoutes(api)
	return r
}

func signedRequest(t *testing.T, path, rawQuery string, body []byte) *http.Request {
	t.Helper()
	url := path
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))

	expiry := time.Now().UnixMilli() + 5_000
	req.Header.Set(service.HeaderKeyID, testKeyID)
	req.Header.Set(service.HeaderAuthExpiration, strconv.FormatInt(expiry, 10))
	req.Header.Set(service.HeaderAuth, service.SignRequest(testSecret, path, rawQuery, expiry, body))
	return req
}

func relayerQuoteBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(&model.ExternalQuoteResponse{
		SignedQuote: model.SignedQuote{
			Quote: model.ExternalQuote{
				Receive: model.AssetTransfer{Mint: "0xquote", Amount: model.NewAmount(1000)},
			},
			Signature: "sig",
		},
	})
	require.NoError(t, err)
	return body
}

func TestQuoteRouteEndToEnd(t *testing.T) {
	relayer := &stubForwarder{resp: &service.UpstreamResponse{
		Status: http.StatusOK, ContentType: "application/json", Body: relayerQuoteBody(t),
	}}
	r := newTestRouter(t, relayer)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, PathRequestQuote, "", []byte(`{"external_order":{}}`)))

	require.Equal(t, http.StatusOK, w.Code)
	var out model.SponsoredQuoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "1000", out.SignedQuote.Quote.Receive.Amount.String())
}

func TestQuoteRouteRejectsUnsignedRequest(t *testing.T) {
	relayer := &stubForwarder{resp: &service.UpstreamResponse{Status: http.StatusOK}}
	r := newTestRouter(t, relayer)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, PathRequestQuote, bytes.NewReader([]byte(`{}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuoteRouteRejectsBadSignature(t *testing.T) {
	relayer := &stubForwarder{resp: &service.UpstreamResponse{Status: http.StatusOK}}
	r := newTestRouter(t, relayer)

	req := signedRequest(t, PathRequestQuote, "", []byte(`{}`))
	req.Header.Set(service.HeaderAuth, "bogus")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuoteRouteRejectsMalformedQueryParams(t *testing.T) {
	relayer := &stubForwarder{resp: &service.UpstreamResponse{
		Status: http.StatusOK, ContentType: "application/json", Body: relayerQuoteBody(t),
	}}
	r := newTestRouter(t, relayer)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, PathRequestQuote, "refund_native_eth=notabool", []byte(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRelayerFailurePassesThrough(t *testing.T) {
	relayer := &stubForwarder{resp: &service.UpstreamResponse{
		Status: http.StatusBadGateway, ContentType: "text/plain", Body: []byte("upstream down"),
	}}
	r := newTestRouter(t, relayer)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, PathRequestQuote, "", []byte(`{}`)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "upstream down", w.Body.String())
}
