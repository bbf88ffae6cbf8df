package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

// TenantGuard admits a caller when the target session belongs to the caller's
// tenant. Calls without a session, sessions without a tenant and unknown
// sessions are admitted; the operation itself reports a missing session.
type TenantGuard struct {
	sessions ports.SessionRepository
}

func NewTenantGuard(sessions ports.SessionRepository) *TenantGuard {
	return &TenantGuard{sessions: sessions}
}

func (g *TenantGuard) Authorize(ctx context.Context, caller domain.Caller, op string, sessionID domain.SessionID) error {
	if sessionID == "" {
		return nil
	}

	session, err := g.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session for %s: %w", op, err)
	}

	if session.Tenant == "" || session.Tenant == caller.Tenant {
		return nil
	}
	return fmt.Errorf("%w: tenant %q cannot %s on session %s", domain.ErrTenantAccessDenied, caller.Tenant, op, sessionID)
}
