package client

import "errors"

var (
	// ErrNoEndpoints is returned when a client is created without endpoints.
	ErrNoEndpoints = errors.New("at least one gRPC endpoint is required")

	// ErrAllEndpointsFailed is returned when every attempt across all
	// endpoints failed.
	ErrAllEndpointsFailed = errors.New("all attempts failed across gRPC endpoints")
)
