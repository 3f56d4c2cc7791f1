package calendarapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"storefront/internal/service"
)

// GoogleCalendar talks to the Google Calendar v3 REST API. Events created for
// an order carry the order id in a private extended property, which is what
// makes the sync idempotent: the notifier looks the property up before
// creating anything.
type GoogleCalendar struct {
	baseURL    string
	httpClient *http.Client
}

// NewGoogleCalendar creates a client against the given API base URL
func NewGoogleCalendar(baseURL string) *GoogleCalendar {
	return &GoogleCalendar{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type eventList struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
}

type eventResource struct {
	ID          string        `json:"id,omitempty"`
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Start       eventDateTime `json:"start"`
	End         eventDateTime `json:"end"`
	Extended    struct {
		Private map[string]string `json:"private"`
	} `json:"extendedProperties"`
}

type eventDateTime struct {
	DateTime string `json:"dateTime"`
}

// FindEventByOrderID searches the primary calendar for an event tagged with
// the order id
func (g *GoogleCalendar) FindEventByOrderID(ctx context.Context, token string, orderID int64) (string, error) {
	query := url.Values{}
	query.Set("privateExtendedProperty", fmt.Sprintf("orderId=%d", orderID))
	query.Set("maxResults", "1")

	endpoint := fmt.Sprintf("%s/calendars/primary/events?%s", g.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("list events", resp)
	}

	var list eventList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", err
	}
	if len(list.Items) == 0 {
		return "", nil
	}
	return list.Items[0].ID, nil
}

// CreateEvent inserts a deadline event into the primary calendar
func (g *GoogleCalendar) CreateEvent(ctx context.Context, token string, event service.CalendarEvent) (string, error) {
	resource := eventResource{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       eventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         eventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}
	resource.Extended.Private = map[string]string{
		"orderId": fmt.Sprintf("%d", event.OrderID),
	}

	body, err := json.Marshal(resource)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/calendars/primary/events", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apiError("create event", resp)
	}

	var created eventResource
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func apiError(op string, resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("calendar %s failed: status=%d body=%s", op, resp.StatusCode, payload)
}
