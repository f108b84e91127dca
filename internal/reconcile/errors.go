package reconcile

import "errors"

var (
	// ErrAuthentication is returned for a notification whose signature does
	// not verify.  No order state is touched.
	ErrAuthentication = errors.New("notification authentication failed")
	// ErrOrderNotFound is returned by Orders implementations for an unknown
	// order id.  HandleNotification turns it into an ignored result;
	// SyncOrder surfaces it.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderMismatch is returned when the gateway answers a sync request
	// with a transaction for another order.
	ErrOrderMismatch = errors.New("gateway returned a different order")
	// ErrSyncUnavailable is returned by SyncOrder when no gateway is wired.
	ErrSyncUnavailable = errors.New("manual sync is not configured")
)
