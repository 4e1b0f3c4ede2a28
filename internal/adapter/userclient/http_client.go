package userclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/flashmart/coupon-service/internal/core/domain"
)

// HTTPUserClient checks user existence against the user service. An unknown
// user and an unreachable user service are distinct failures: the first is
// a validation error, the second a verification failure.
type HTTPUserClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPUserClient(baseURL string, timeout time.Duration) *HTTPUserClient {
	return &HTTPUserClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPUserClient) EnsureUserExists(ctx context.Context, userID int64) error {
	url := c.baseURL + "/api/users/" + strconv.FormatInt(userID, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUserVerification, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUserVerification, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrUserNotFound
	default:
		return fmt.Errorf("%w: user service returned %d", domain.ErrUserVerification, resp.StatusCode)
	}
}
