package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	accessTokenHeader = "X-Access-Token"
	accessTokenQuery  = "token"
)

type httpHandler struct {
	engine *boxoffice.Engine
	config Config
	logger *zap.Logger
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.config.RequestTimeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	category, reason := boxoffice.Classify(err)
	status := statusForCategory(category)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("route", ctx.FullPath()), zap.Error(err))
		ctx.JSON(status, errorResponse(reason, "request could not be completed"))
		return
	}
	ctx.JSON(status, errorResponse(reason, err.Error()))
}

func (handler *httpHandler) handleReady(ctx *gin.Context) {
	if handler.config.Ready == nil {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.config.Ready(requestCtx); err != nil {
		handler.logger.Warn("readiness probe failed", zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return false
	}
	return true
}

func pathReference(ctx *gin.Context) (boxoffice.Reference, bool) {
	reference, err := boxoffice.NewReference(ctx.Param("reference"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_reference", err.Error()))
		return boxoffice.Reference{}, false
	}
	return reference, true
}

func pathProvider(ctx *gin.Context) (boxoffice.ProviderID, bool) {
	provider, err := boxoffice.NewProviderID(ctx.Param("provider"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_provider", err.Error()))
		return "", false
	}
	return provider, true
}

func accessToken(ctx *gin.Context) string {
	if token := strings.TrimSpace(ctx.GetHeader(accessTokenHeader)); token != "" {
		return token
	}
	return strings.TrimSpace(ctx.Query(accessTokenQuery))
}

func (handler *httpHandler) handleStartIntent(ctx *gin.Context) {
	var request intentRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	intent, err := handler.engine.Checkout.StartIntent(requestCtx, boxoffice.IntentRequest{
		UnitID:       request.UnitID,
		Quantity:     request.Quantity,
		PayerContact: request.PayerContact,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	response := intentResponse{
		Success:        true,
		Reference:      intent.Reference.String(),
		Provider:       intent.Provider.String(),
		Status:         intent.Status.String(),
		Amount:         intent.Amount.String(),
		AmountCents:    intent.Amount.Int64(),
		Currency:       intent.Currency,
		PaymentURL:     intent.PaymentURL,
		DisplayMessage: intent.DisplayMessage,
		ReceiptToken:   intent.ReceiptToken,
	}
	if !intent.ExpiresAt.IsZero() {
		response.ExpiresAt = intent.ExpiresAt.UTC().Format(time.RFC3339)
	}
	ctx.JSON(http.StatusCreated, response)
}

func (handler *httpHandler) handleTransaction(ctx *gin.Context) {
	reference, ok := pathReference(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, units, err := handler.engine.Checkout.Receipt(requestCtx, reference, accessToken(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	codes := make([]string, 0, len(units))
	for _, unit := range units {
		codes = append(codes, unit.UnitCode)
	}
	ctx.JSON(http.StatusOK, transactionResponse{
		Success:     true,
		Reference:   transaction.Reference.String(),
		Provider:    transaction.Provider.String(),
		Status:      transaction.Status.String(),
		Amount:      transaction.AmountCents.String(),
		AmountCents: transaction.AmountCents.Int64(),
		Currency:    transaction.Currency,
		Codes:       codes,
	})
}

func (handler *httpHandler) handleWebhook(ctx *gin.Context) {
	provider, ok := pathProvider(ctx)
	if !ok {
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, handler.config.MaxWebhookBytes))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "unreadable body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.Checkout.HandleCallback(requestCtx, provider, payload, ctx.Request.Header)
	if err != nil {
		category, reason := boxoffice.Classify(err)
		status := webhookStatusForCategory(category)
		if status >= http.StatusInternalServerError {
			handler.logger.Error("webhook processing failed", zap.String("provider", provider.String()), zap.Error(err))
		}
		ctx.JSON(status, errorResponse(reason, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":   true,
		"outcome":   string(result.Outcome),
		"reference": result.Reference.String(),
	})
}

func (handler *httpHandler) handleFulfill(ctx *gin.Context) {
	reference, ok := pathReference(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.Fulfillment.Fulfill(requestCtx, reference)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, fulfillmentPayload(result))
}

func fulfillmentPayload(result boxoffice.FulfillmentResult) fulfillmentResponse {
	return fulfillmentResponse{
		Success:          true,
		Reference:        result.Reference.String(),
		AlreadyProcessed: result.AlreadyProcessed,
		LateConfirmation: result.LateConfirmation,
		Kind:             string(result.Kind),
		Codes:            result.Codes(),
	}
}

func (handler *httpHandler) handleOverrideStatus(ctx *gin.Context) {
	reference, ok := pathReference(ctx)
	if !ok {
		return
	}
	var request statusRequest
	if !bindJSON(ctx, &request) {
		return
	}
	status, err := boxoffice.ParseTransactionStatus(request.Status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.Checkout.OverrideStatus(requestCtx, reference, status, operatorID(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":     true,
		"outcome":     string(result.Outcome),
		"status":      result.Status.String(),
		"fulfillment": fulfillmentPayload(result.Fulfillment),
	})
}

func (handler *httpHandler) handleGateways(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	gateways, err := handler.engine.Router.Gateways(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]gatewayPayload, 0, len(gateways))
	for _, gateway := range gateways {
		entry := gatewayPayload{
			Provider:     gateway.Provider.String(),
			Enabled:      gateway.Enabled,
			Priority:     gateway.Priority,
			FailureCount: gateway.FailureCount,
		}
		if !gateway.LastFailureAt.IsZero() {
			entry.LastFailureAt = gateway.LastFailureAt.UTC().Format(time.RFC3339)
		}
		payload = append(payload, entry)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":  true,
		"selected": handler.engine.Router.SelectProvider(requestCtx).String(),
		"gateways": payload,
	})
}

func (handler *httpHandler) handleSetPrimary(ctx *gin.Context) {
	provider, ok := pathProvider(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.engine.Router.SetPrimary(requestCtx, provider); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "primary": provider.String()})
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	view, err := handler.engine.Ledger.Balance(requestCtx, ctx.Param("organizer_id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, balanceResponse{
		Success:         true,
		OrganizerID:     view.OrganizerID,
		GrossCents:      view.GrossCents.Int64(),
		CommissionCents: view.CommissionCents.Int64(),
		NetCents:        view.NetCents.Int64(),
		PayoutsCents:    view.PayoutsCents.Int64(),
		AvailableCents:  view.AvailableCents.Int64(),
		Available:       view.AvailableCents.String(),
	})
}

func (handler *httpHandler) handleRequestPayout(ctx *gin.Context) {
	var request payoutRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := boxoffice.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	payout, err := handler.engine.Ledger.RequestPayout(requestCtx, ctx.Param("organizer_id"), amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, payoutPayload(payout))
}

func (handler *httpHandler) handleTransitionPayout(ctx *gin.Context) {
	var request statusRequest
	if !bindJSON(ctx, &request) {
		return
	}
	status, err := boxoffice.ParsePayoutStatus(request.Status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	payout, err := handler.engine.Ledger.TransitionPayout(requestCtx, ctx.Param("payout_id"), status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, payoutPayload(payout))
}

func payoutPayload(payout boxoffice.Payout) payoutResponse {
	return payoutResponse{
		Success:     true,
		PayoutID:    payout.PayoutID,
		OrganizerID: payout.OrganizerID,
		AmountCents: payout.AmountCents.Int64(),
		Status:      string(payout.Status),
	}
}

func (handler *httpHandler) handleSubmitNomination(ctx *gin.Context) {
	var request nominationRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	nomination, err := handler.engine.Nominations.Submit(requestCtx, boxoffice.NominationRequest{
		EventID:      request.EventID,
		NomineeName:  request.NomineeName,
		NomineeEmail: request.NomineeEmail,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	response := nominationPayload(nomination)
	response.AccessToken = handler.engine.Nominations.AccessToken(nomination.NominationID)
	ctx.JSON(http.StatusCreated, response)
}

func (handler *httpHandler) handleWithdrawNomination(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	nomination, err := handler.engine.Nominations.WithdrawWithToken(requestCtx, ctx.Param("nomination_id"), accessToken(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, nominationPayload(nomination))
}

func (handler *httpHandler) handleApproveNomination(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	nomination, err := handler.engine.Nominations.Approve(requestCtx, ctx.Param("nomination_id"), operatorID(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, nominationPayload(nomination))
}

func (handler *httpHandler) handleRejectNomination(ctx *gin.Context) {
	var request reviewRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	nomination, err := handler.engine.Nominations.Reject(requestCtx, ctx.Param("nomination_id"), operatorID(ctx), strings.TrimSpace(request.Reason))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, nominationPayload(nomination))
}

func nominationPayload(nomination boxoffice.Nomination) nominationResponse {
	return nominationResponse{
		Success:          true,
		NominationID:     nomination.NominationID,
		EventID:          nomination.EventID,
		NomineeName:      nomination.NomineeName,
		Status:           string(nomination.Status),
		Reason:           nomination.Reason,
		ContestantUnitID: nomination.ContestantUnitID,
	}
}
