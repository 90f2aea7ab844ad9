package boxoffice

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ServiceOption configures an engine service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger          OperationLogger
	notifier        Notifier
	txTimeout       time.Duration
	expireBatchSize int
	newID           func() string
	tokens          AccessTokens
}

func newServiceOptions(options []ServiceOption) serviceOptions {
	resolved := serviceOptions{
		notifier:        noopNotifier{},
		txTimeout:       DefaultTransactionTimeout,
		expireBatchSize: defaultExpireBatchSize,
		newID:           uuid.NewString,
		tokens:          RandomAccessTokens(),
	}
	for _, option := range options {
		if option != nil {
			option(&resolved)
		}
	}
	return resolved
}

// OperationLogger records domain-level events emitted by service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing engine operation.
type OperationLog struct {
	Operation string
	Reference Reference
	UnitID    string
	Quantity  int64
	Amount    AmountCents
	Provider  ProviderID
	Subject   string
	Detail    string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(options *serviceOptions) {
		options.logger = logger
	}
}

// WithNotifier wires the collaborator used for buyer receipts and operator alerts.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(options *serviceOptions) {
		if notifier != nil {
			options.notifier = notifier
		}
	}
}

// WithAccessTokens shares one token signer between services.
func WithAccessTokens(tokens AccessTokens) ServiceOption {
	return func(options *serviceOptions) {
		if tokens.secret != "" {
			options.tokens = tokens
		}
	}
}

// WithTransactionTimeout bounds each isolated transaction.
func WithTransactionTimeout(timeout time.Duration) ServiceOption {
	return func(options *serviceOptions) {
		if timeout > 0 {
			options.txTimeout = timeout
		}
	}
}

// WithExpireBatchSize limits how many stale reservations one sweep pass loads.
func WithExpireBatchSize(size int) ServiceOption {
	return func(options *serviceOptions) {
		if size > 0 {
			options.expireBatchSize = size
		}
	}
}

// WithIDGenerator overrides how row identifiers are minted.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(options *serviceOptions) {
		if newID != nil {
			options.newID = newID
		}
	}
}

func (options serviceOptions) logOperation(ctx context.Context, entry OperationLog) {
	if options.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	options.logger.LogOperation(ctx, entry)
}
