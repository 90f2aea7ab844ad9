package boxoffice

import "time"

const (
	operationReserve         = "reserve"
	operationCancel          = "cancel_reservation"
	operationExpireStale     = "expire_stale"
	operationSelectProvider  = "select_provider"
	operationRecordSuccess   = "record_gateway_success"
	operationRecordFailure   = "record_gateway_failure"
	operationSetPrimary      = "set_primary_gateway"
	operationEnsureProviders = "ensure_providers"
	operationFulfill         = "fulfill"
	operationStartIntent     = "start_intent"
	operationCallback        = "payment_callback"
	operationOverrideStatus  = "override_status"
	operationRequestPayout   = "request_payout"
	operationPayoutStatus    = "transition_payout"
	operationSubmitNominee   = "submit_nomination"
	operationApproveNominee  = "approve_nomination"
	operationRejectNominee   = "reject_nomination"
	operationWithdrawNominee = "withdraw_nomination"

	nomineeActor = "nominee"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultProvider is used whenever routing cannot produce a usable provider.
	DefaultProvider ProviderID = "paystack"

	// DefaultReservationTTL bounds how long a checkout holds inventory.
	DefaultReservationTTL = 10 * time.Minute

	// DefaultTransactionTimeout bounds one reservation or fulfillment transaction.
	DefaultTransactionTimeout = 30 * time.Second

	// FailureAlertThreshold is the consecutive failure count above which operators are alerted.
	FailureAlertThreshold = 3

	defaultExpireBatchSize = 500
	defaultCurrency        = "NGN"
	maxIntentQuantity      = 1000
	maxReferenceLength     = 128
	minorUnitDigits        = 2

	unitCodePrefixTicket  = "TKT"
	unitCodePrefixVote    = "VOT"
	unitCodeGroupLength   = 4
	unitCodeGroups        = 3
	unitCodeDelimiter     = "-"
	unitCodeSeedDelimiter = ":"

	callbackSourceOperator = "operator"
)
