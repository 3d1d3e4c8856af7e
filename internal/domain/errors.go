package domain

import "errors"

var (
	ErrUncacheable              = errors.New("operation is not cacheable")
	ErrInvalidConfig            = errors.New("invalid configuration")
	ErrTransport                = errors.New("transport failure")
	ErrTemporarilyUnavailable   = errors.New("temporarily unavailable")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrSubscriptionsUnsupported = errors.New("subscriptions are not supported by this transport")
	ErrNoData                   = errors.New("no data")
	ErrNotInitialized           = errors.New("session not initialized")
	ErrClusterNotFound          = errors.New("cluster not found")
	ErrMetricNotFound           = errors.New("metric not found")
	ErrUnknownScope             = errors.New("unknown metric scope")
)
