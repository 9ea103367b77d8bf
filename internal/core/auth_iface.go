package core

import (
	"context"

	"github.com/dkeye/Board/internal/domain"
)

// Authenticator maps an opaque credential to a stable identity.
type Authenticator interface {
	Verify(ctx context.Context, token string) (*domain.User, error)
}
