package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrAdmission = errors.New("admission denied")

// TokenFrom returns the credential carried by the handshake: the token query
// parameter, or else a bearer Authorization header.
func TokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

// Authenticate verifies token against auth. Any failure, including a panic in
// the authenticator, is reported as ErrAdmission.
func Authenticate(ctx context.Context, auth core.Authenticator, token string) (user *domain.User, err error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrAdmission)
	}
	defer func() {
		if r := recover(); r != nil {
			user, err = nil, fmt.Errorf("%w: authenticator panic: %v", ErrAdmission, r)
		}
	}()
	user, err = auth.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdmission, err)
	}
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: empty identity", ErrAdmission)
	}
	return user, nil
}

func (ctl *SignalWSController) admit(ctx context.Context, token string) (*domain.User, error) {
	return Authenticate(ctx, ctl.Auth, token)
}

// revalidate re-verifies the connection's token every RevalidatePeriod and
// cancels the connection once it no longer yields the admitted identity.
func (ctl *SignalWSController) revalidate(
	ctx context.Context,
	sid core.SessionID,
	uid domain.UserID,
	token string,
	cancel context.CancelFunc,
) {
	ticker := time.NewTicker(ctl.opts.RevalidatePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			user, err := Authenticate(ctx, ctl.Auth, token)
			if err == nil && user.ID == uid {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("credential no longer valid, closing")
			cancel()
			return
		}
	}
}
