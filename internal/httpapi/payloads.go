package httpapi

type intentRequest struct {
	UnitID       string `json:"unit_id"`
	Quantity     int64  `json:"quantity"`
	PayerContact string `json:"payer_contact"`
}

type intentResponse struct {
	Success        bool   `json:"success"`
	Reference      string `json:"reference"`
	Provider       string `json:"provider"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	PaymentURL     string `json:"payment_url,omitempty"`
	DisplayMessage string `json:"display_message,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	ReceiptToken   string `json:"receipt_token"`
}

type transactionResponse struct {
	Success     bool     `json:"success"`
	Reference   string   `json:"reference"`
	Provider    string   `json:"provider"`
	Status      string   `json:"status"`
	Amount      string   `json:"amount"`
	AmountCents int64    `json:"amount_cents"`
	Currency    string   `json:"currency"`
	Codes       []string `json:"codes"`
}

type fulfillmentResponse struct {
	Success          bool     `json:"success"`
	Reference        string   `json:"reference"`
	AlreadyProcessed bool     `json:"already_processed"`
	LateConfirmation bool     `json:"late_confirmation"`
	Kind             string   `json:"kind,omitempty"`
	Codes            []string `json:"codes"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type gatewayPayload struct {
	Provider      string `json:"provider"`
	Enabled       bool   `json:"enabled"`
	Priority      int    `json:"priority"`
	FailureCount  int    `json:"failure_count"`
	LastFailureAt string `json:"last_failure_at,omitempty"`
}

type balanceResponse struct {
	Success         bool   `json:"success"`
	OrganizerID     string `json:"organizer_id"`
	GrossCents      int64  `json:"gross_cents"`
	CommissionCents int64  `json:"commission_cents"`
	NetCents        int64  `json:"net_cents"`
	PayoutsCents    int64  `json:"payouts_cents"`
	AvailableCents  int64  `json:"available_cents"`
	Available       string `json:"available"`
}

type payoutRequest struct {
	Amount string `json:"amount"`
}

type payoutResponse struct {
	Success     bool   `json:"success"`
	PayoutID    string `json:"payout_id"`
	OrganizerID string `json:"organizer_id"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
}

type nominationRequest struct {
	EventID      string `json:"event_id"`
	NomineeName  string `json:"nominee_name"`
	NomineeEmail string `json:"nominee_email"`
}

type reviewRequest struct {
	Reason string `json:"reason"`
}

type nominationResponse struct {
	Success          bool   `json:"success"`
	NominationID     string `json:"nomination_id"`
	EventID          string `json:"event_id"`
	NomineeName      string `json:"nominee_name"`
	Status           string `json:"status"`
	Reason           string `json:"reason,omitempty"`
	ContestantUnitID string `json:"contestant_unit_id,omitempty"`
	AccessToken      string `json:"access_token,omitempty"`
}
