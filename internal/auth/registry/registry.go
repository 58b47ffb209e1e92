// Package registry implements the shared revocation registry consulted on
// every token validation.
//
// The registry must be shared across all service instances: a token revoked
// on instance A has to be invalid on instance B immediately, so a
// process-local cache can never satisfy this interface in a multi-instance
// deployment.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the registry could not be reached within its
// deadline. Callers decide fail-open vs fail-closed; the service defaults to
// fail-closed.
var ErrUnavailable = errors.New("registry: unavailable")

// Registry records revoked token identifiers until their natural expiry.
type Registry interface {
	// Revoke blacklists the token identifier for ttl, which should equal
	// the remaining lifetime of the token so entries age out on their own.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error

	// IsRevoked reports whether the identifier has been blacklisted.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Ping verifies the registry is reachable.
	Ping(ctx context.Context) error
}
