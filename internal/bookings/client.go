package bookings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opsdeck/booking-sync/internal/platform/logger"
	"github.com/opsdeck/booking-sync/internal/reconciler"

	"github.com/sirupsen/logrus"
)

// Client fetches the authoritative booking list over REST.  It implements
// reconciler.BookingFetcher.
type Client struct {
	urlTemplate string
	credential  func() string
	httpClient  *http.Client
}

func NewClient(urlTemplate string, credential func() string, timeout time.Duration) *Client {
	return &Client{
		urlTemplate: urlTemplate,
		credential:  credential,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) FetchBookings(ctx context.Context, tenantID string) ([]reconciler.BookingRecord, error) {

	bookingsUrl := fmt.Sprintf(c.urlTemplate, url.PathEscape(tenantID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bookingsUrl, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if credential := c.credential(); credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("booking list fetch returned status %d", resp.StatusCode)
	}

	var rawBookings []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&rawBookings); err != nil {
		return nil, err
	}

	bookings := make([]reconciler.BookingRecord, 0, len(rawBookings))
	for _, obj := range rawBookings {
		record, ok := reconciler.BookingRecordFromObject(obj)
		if !ok {
			logger.Log.WithFields(logrus.Fields{"tenant_id": tenantID}).Debug("Skipping booking without an identifier")
			continue
		}
		bookings = append(bookings, record)
	}

	return bookings, nil
}
