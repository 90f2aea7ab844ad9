package boxoffice

import "context"

// NotificationKind names what a notification is about.
type NotificationKind string

const (
	NotificationUnitsIssued    NotificationKind = "units_issued"
	NotificationGatewayAlert   NotificationKind = "gateway_alert"
	NotificationFulfillment    NotificationKind = "fulfillment_alert"
	NotificationNominationDone NotificationKind = "nomination_reviewed"
)

// Notification is a fire-and-forget message for a buyer or an operator.
// An empty Recipient addresses the operators.
type Notification struct {
	Kind       NotificationKind
	Recipient  string
	Subject    string
	Body       string
	Attributes map[string]string
}

// Notifier delivers notifications. Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, notification Notification)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}
