package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/protocol"
)

var ErrSnapshot = errors.New("snapshot fetch failed")

// SnapshotSource returns the durable records of a room with Seq greater than
// after, oldest first.
type SnapshotSource interface {
	ListSince(ctx context.Context, room domain.RoomID, after int64) ([]domain.Record, error)
}

// HTTPSource reads snapshots from the server's records endpoint.
type HTTPSource struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPSource(baseURL, token string) *HTTPSource {
	return &HTTPSource{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSource) ListSince(ctx context.Context, room domain.RoomID, after int64) ([]domain.Record, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	u = u.JoinPath("api", "rooms", string(room), "records")
	u.RawQuery = url.Values{"after": {strconv.FormatInt(after, 10)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSnapshot, resp.StatusCode)
	}

	var snap protocol.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	return snap.Records, nil
}
