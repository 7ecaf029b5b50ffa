package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/darkpool-labs/relaygate/internal/config"
	"github.com/darkpool-labs/relaygate/internal/pkg/apperrors"
)

// HeaderRelayerAdminKey carries the privileged credential the relayer
// expects. It is attached by the gateway and never exposed to callers.
const HeaderRelayerAdminKey = "x-relayer-admin-key"

// UpstreamResponse is a relayer response held verbatim so that non-2xx
// statuses can be relayed to the original caller byte-for-byte.
type UpstreamResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// OK reports whether the relayer accepted the request.
func (r *UpstreamResponse) OK() bool {
	return r.Status == http.StatusOK
}

// Forwarder sends a request to the relayer with admin credentials.
type Forwarder interface {
	Forward(ctx context.Context, path, rawQuery string, body []byte) (*UpstreamResponse, error)
}

// RelayerClient forwards caller requests to the relayer over HTTP. The
// method is always POST; the gateway never retries relayer calls.
type RelayerClient struct {
	baseURL  string
	adminKey string
	http     *http.Client
}

func NewRelayerClient(cfg *config.RelayerConfig) *RelayerClient {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RelayerClient{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		adminKey: cfg.AdminKey,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
	}
}

func (c *RelayerClient) Forward(ctx context.Context, path, rawQuery string, body []byte) (*UpstreamResponse, error) {
	url := c.baseURL + path
	if rawQuery != "" {
		url += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewUpstream("failed to build relayer request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRelayerAdminKey, c.adminKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewUpstream(fmt.Sprintf("relayer request failed: %s", path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewUpstream("failed to read relayer response", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return &UpstreamResponse{
		Status:      resp.StatusCode,
		ContentType: contentType,
		Body:        respBody,
	}, nil
}
