package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ezoidc/ezanswer/pkg/client"
	"github.com/ezoidc/ezanswer/pkg/engine"
	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var APIVersion = "1.0"

// Largest accepted request body
const MaxBodySize int64 = 1 << 20

type Answerer interface {
	Answer(ctx context.Context, query string) (*client.Response, error)
}

type API struct {
	Gin      *gin.Engine
	Engine   *engine.Engine
	Answerer Answerer
}

func NewAPI(eng *engine.Engine, answerer Answerer) *API {
	api := &API{Engine: eng, Answerer: answerer}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(jsonLogs())
	router.Use(maxBodySize(MaxBodySize))

	public := router.Group("/ezanswer")
	public.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.MetadataResponse{
			Ezanswer:   true,
			APIVersion: APIVersion,
		})
	})

	handlers := []gin.HandlerFunc{}
	if eng.Configuration.AuthEnabled() {
		handlers = append(handlers, BearerToken(), ValidToken(eng.Configuration))
	}
	v1 := public.Group("/"+APIVersion, handlers...)
	v1.POST("/answer", api.answer)

	api.Gin = router
	return api
}

func (a *API) answer(c *gin.Context) {
	var body models.AnswerRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid JSON request body: " + err.Error(),
		})
		return
	}
	if body.Query == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Missing 'query' in request body"})
		return
	}

	decision, err := a.Engine.Evaluate(c, &engine.Input{
		Query:  body.Query,
		Params: body.Params,
		Claims: c.GetStringMap("claims"),
		Issuer: c.GetString("issuer"),
	})
	if err != nil {
		log.Error().Err(err).Any("request_id", c.Value("request_id")).Msg("policy evaluation failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "policy evaluation failed"})
		return
	}
	c.Set("allowed", decision.Allow)
	if !decision.Allow {
		reason := strings.Join(decision.Reasons, "; ")
		c.Set("reason", reason)
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:  "query denied by policy",
			Reason: reason,
		})
		return
	}

	resp, err := a.Answerer.Answer(c.Request.Context(), body.Query)
	var invalid *client.InvalidResponseError
	if errors.As(err, &invalid) && !invalid.OK() {
		resp, err = &invalid.Response, nil
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.Set("upstream_status", resp.StatusCode)

	if !resp.OK() {
		c.JSON(http.StatusBadGateway, models.UpstreamErrorResponse{
			Error:   "upstream request failed",
			Status:  resp.StatusCode,
			Details: string(resp.Body),
		})
		return
	}

	c.JSON(http.StatusOK, models.AnswerResponse{Data: resp.Body})
}

func (a *API) Run() error {
	addr := a.Engine.Configuration.Listen
	log.Info().
		Str("address", addr).
		Bool("auth", a.Engine.Configuration.AuthEnabled()).
		Msg("starting api server")
	return a.Gin.Run(addr)
}

func jsonLogs() gin.HandlerFunc {
	return gin.LoggerWithFormatter(
		func(params gin.LogFormatterParams) string {
			line := log.Info().
				Any("request_id", params.Keys["request_id"]).
				Int("status", params.StatusCode).
				Str("method", params.Method).
				Str("path", params.Path).
				Str("client_ip", params.ClientIP).
				Dur("response_time", params.Latency)

			if allowed, ok := params.Keys["allowed"]; ok {
				line = line.Any("allowed", allowed)
			}

			if upstream, ok := params.Keys["upstream_status"].(int); ok {
				line = line.Int("upstream_status", upstream)
			}

			if issuer, ok := params.Keys["issuer"].(string); ok {
				line = line.Str("issuer", issuer)
			}

			if reason, ok := params.Keys["reason"].(string); ok && reason != "" {
				line = line.Str("reason", reason)
			}

			if claims, ok := params.Keys["claims"].(map[string]interface{}); ok {
				sub, _ := claims["sub"].(string)
				iss, _ := claims["iss"].(string)
				line = line.Str("sub", sub).Str("iss", iss)
			}
			line.Send()
			return ""
		},
	)
}

func requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rid := uuid.New().String()
		ctx.Set("request_id", rid)
		ctx.Header("X-Request-ID", rid)
	}
}

func maxBodySize(n int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Body != nil {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, n)
		}
	}
}
