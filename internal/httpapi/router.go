package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey       = "auth_claims"
	defaultRequestTimeout  = 30 * time.Second
	defaultMaxWebhookBytes = 1 << 20
)

// ErrInvalidRouterConfig reports a router missing one of its collaborators.
var ErrInvalidRouterConfig = errors.New("invalid router config")

// Config tunes the HTTP surface.
type Config struct {
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	MaxWebhookBytes int64
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready backs /readyz when set.
	Ready func(ctx context.Context) error
}

// NewRouter exposes the engine over HTTP. Operator routes require a valid session.
func NewRouter(engine *boxoffice.Engine, validator *sessionvalidator.Validator, config Config, logger *zap.Logger) (*gin.Engine, error) {
	if engine == nil || engine.Checkout == nil {
		return nil, fmt.Errorf("%w: engine is nil", ErrInvalidRouterConfig)
	}
	if validator == nil {
		return nil, fmt.Errorf("%w: session validator is nil", ErrInvalidRouterConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	if config.MaxWebhookBytes <= 0 {
		config.MaxWebhookBytes = defaultMaxWebhookBytes
	}
	handler := &httpHandler{engine: engine, config: config, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if len(config.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     config.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", handler.handleReady)
	if config.Metrics != nil {
		router.GET("/metrics", gin.WrapH(config.Metrics))
	}

	api := router.Group("/api")
	api.POST("/intents", handler.handleStartIntent)
	api.GET("/transactions/:reference", handler.handleTransaction)
	api.POST("/webhooks/:provider", handler.handleWebhook)
	api.POST("/nominations", handler.handleSubmitNomination)
	api.POST("/nominations/:nomination_id/withdraw", handler.handleWithdrawNomination)

	operator := api.Group("/operator")
	operator.Use(validator.GinMiddleware(claimsContextKey), requireOperator)
	operator.POST("/transactions/:reference/fulfill", handler.handleFulfill)
	operator.POST("/transactions/:reference/status", handler.handleOverrideStatus)
	operator.GET("/gateways", handler.handleGateways)
	operator.POST("/gateways/:provider/primary", handler.handleSetPrimary)
	operator.GET("/organizers/:organizer_id/balance", handler.handleBalance)
	operator.POST("/organizers/:organizer_id/payouts", handler.handleRequestPayout)
	operator.POST("/payouts/:payout_id/status", handler.handleTransitionPayout)
	operator.POST("/nominations/:nomination_id/approve", handler.handleApproveNomination)
	operator.POST("/nominations/:nomination_id/reject", handler.handleRejectNomination)

	return router, nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		logger.Debug("http request",
			zap.String("method", ctx.Request.Method),
			zap.String("route", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		)
	}
}

func requireOperator(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil || strings.TrimSpace(claims.GetUserID()) == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	ctx.Next()
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func operatorID(ctx *gin.Context) string {
	if claims := getClaims(ctx); claims != nil {
		return claims.GetUserID()
	}
	return ""
}

func errorResponse(reason string, message string) gin.H {
	return gin.H{
		"success": false,
		"reason":  reason,
		"message": message,
	}
}

func statusForCategory(category boxoffice.ErrorCategory) int {
	switch category {
	case boxoffice.CategoryValidation:
		return http.StatusBadRequest
	case boxoffice.CategoryAuthenticity:
		return http.StatusUnauthorized
	case boxoffice.CategoryNotFound:
		return http.StatusNotFound
	case boxoffice.CategoryCapacity, boxoffice.CategoryConflict:
		return http.StatusConflict
	case boxoffice.CategoryTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// webhookStatusForCategory only asks providers to retry when a retry can help.
func webhookStatusForCategory(category boxoffice.ErrorCategory) int {
	switch category {
	case boxoffice.CategoryAuthenticity:
		return http.StatusUnauthorized
	case boxoffice.CategoryValidation:
		return http.StatusBadRequest
	case boxoffice.CategoryTransient:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
