package striperepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/callogan/library-service-api/util/httpx"
)

const baseURL = "https://api.stripe.com/v1"

type httpRepo struct {
	apiKey string
	client *http.Client
}

func NewHTTP(apiKey string) Repo { return &httpRepo{apiKey: apiKey, client: httpx.Client()} }

type sessionPayload struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	ExpiresAt     int64  `json:"expires_at"`
	PaymentStatus string `json:"payment_status"`
}

func (r *httpRepo) CreateSession(req CreateSessionReq) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("success_url", req.SuccessURL+"?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", req.CancelURL+"?session_id={CHECKOUT_SESSION_ID}")
	if !req.ExpiresAt.IsZero() {
		form.Set("expires_at", strconv.FormatInt(req.ExpiresAt.Unix(), 10))
	}

	httpReq, _ := http.NewRequest("POST", baseURL+"/checkout/sessions", strings.NewReader(form.Encode()))
	httpReq.SetBasicAuth(r.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe create session failed: %s", resp.Status)
	}

	var out sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("stripe: empty session id")
	}

	return &Session{
		SessionID:  out.ID,
		SessionURL: out.URL,
		ExpiresAt:  time.Unix(out.ExpiresAt, 0).UTC(),
	}, nil
}

func (r *httpRepo) RetrieveSession(sessionID string) (*SessionStatus, error) {
	httpReq, _ := http.NewRequest("GET", baseURL+"/checkout/sessions/"+url.PathEscape(sessionID), nil)
	httpReq.SetBasicAuth(r.apiKey, "")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe retrieve session failed: %s", resp.Status)
	}

	var out sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &SessionStatus{PaymentStatus: out.PaymentStatus}, nil
}
