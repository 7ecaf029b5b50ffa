package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/darkpool-labs/relaygate/internal/middleware"
	"github.com/darkpool-labs/relaygate/internal/model"
	"github.com/darkpool-labs/relaygate/internal/pkg/apperrors"
	"github.com/darkpool-labs/relaygate/internal/service"
)

const (
	// HeaderSDKVersion carries the client SDK version; clients predating
	// the header report as pre-v0.1.0.
	HeaderSDKVersion  = "x-renegade-sdk-version"
	defaultSDKVersion = "pre-v0.1.0"

	PathRequestQuote  = "/v0/matching-engine/quote"
	PathAssembleMatch = "/v0/matching-engine/assemble-external-match"
	PathRequestMatch  = "/v0/matching-engine/request-external-match"
)

type ExternalMatchHandler struct {
	proxy *service.Proxy
}

func NewExternalMatchHandler(proxy *service.Proxy) *ExternalMatchHandler {
	return &ExternalMatchHandler{proxy: proxy}
}

func (h *ExternalMatchHandler) RegisterRoutes(r gin.IRouter) {
	r.POST(PathRequestQuote, h.RequestQuote)
	r.POST(PathAssembleMatch, h.AssembleMatch)
	r.POST(PathRequestMatch, h.RequestMatch)
}

type pipelineFn func(
	ctx context.Context,
	caller *model.Caller,
	path, rawQuery string,
	body []byte,
	params *model.SponsorshipQueryParams,
	sdkVersion string,
) (*service.UpstreamResponse, error)

func (h *ExternalMatchHandler) RequestQuote(c *gin.Context) {
	h.serve(c, h.proxy.HandleQuote)
}

func (h *ExternalMatchHandler) AssembleMatch(c *gin.Context) {
	h.serve(c, h.proxy.HandleAssembly)
}

func (h *ExternalMatchHandler) RequestMatch(c *gin.Context) {
	h.serve(c, h.proxy.HandleMatch)
}

func (h *ExternalMatchHandler) serve(c *gin.Context, fn pipelineFn) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		c.Error(apperrors.NewUnauthorized("missing caller context"))
		return
	}

	var params model.SponsorshipQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.Error(apperrors.NewSerde(err))
		return
	}

	sdkVersion := c.GetHeader(HeaderSDKVersion)
	if sdkVersion == "" {
		sdkVersion = defaultSDKVersion
	}

	resp, err := fn(
		c.Request.Context(),
		caller,
		c.Request.URL.Path,
		c.Request.URL.RawQuery,
		middleware.RawBody(c),
		&params,
		sdkVersion,
	)
	if err != nil {
		c.Error(err)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.Status, contentType, resp.Body)
}

// HealthCheck reports gateway liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
