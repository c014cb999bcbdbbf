package resy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/resy-swiper/internal/slots"
)

const DefaultBaseURL = "https://api.resy.com"

// Session is what every call after login needs. It is created once by
// Authenticate and only read afterwards, so concurrent confirmations share it.
type Session struct {
	APIKey    string
	AuthToken string
}

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// AuthAttempts bounds Authenticate on transport errors. HTTP rejections
	// (bad password, bad key) are never retried.
	AuthAttempts int
	HTTPClient   *http.Client
}

// Client talks to the Resy API: login, /4/find, /3/details, /3/book.
type Client struct {
	hc           *http.Client
	base         string
	apiKey       string
	authAttempts int
}

func New(opt Options) *Client {
	hc := opt.HTTPClient
	if hc == nil {
		timeout := opt.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	base := opt.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	attempts := opt.AuthAttempts
	if attempts < 1 {
		attempts = 3
	}
	return &Client{
		hc:           hc,
		base:         strings.TrimRight(base, "/"),
		apiKey:       opt.APIKey,
		authAttempts: attempts,
	}
}

type authResponse struct {
	Token string `json:"token"`
}

// Authenticate exchanges email/password for an auth token.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	if c.apiKey == "" {
		return nil, errors.New("resy api key is empty")
	}
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	anon := &Session{APIKey: c.apiKey}

	var lastErr error
	for i := 0; i < c.authAttempts; i++ {
		status, body, err := c.do(ctx, anon, http.MethodPost, "/3/auth/password", "application/x-www-form-urlencoded", nil, []byte(form.Encode()))
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 400 {
			return nil, newStatusError(http.MethodPost, "/3/auth/password", status, body)
		}
		var res authResponse
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("decode auth response: %w", err)
		}
		if res.Token == "" {
			return nil, errors.New("auth response has no token")
		}
		return &Session{APIKey: c.apiKey, AuthToken: res.Token}, nil
	}
	return nil, fmt.Errorf("resy auth failed after %d attempts: %w", c.authAttempts, lastErr)
}

func (c *Client) Ping(ctx context.Context, sess *Session) error {
	status, body, err := c.do(ctx, sess, http.MethodGet, "/2/user", "", nil, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return newStatusError(http.MethodGet, "/2/user", status, body)
	}
	return nil
}

type findResponse struct {
	Results struct {
		Venues []struct {
			Slots []struct {
				Config struct {
					Type  string `json:"type"`
					Token string `json:"token"`
				} `json:"config"`
			} `json:"slots"`
		} `json:"venues"`
	} `json:"results"`
}

// Find is one inventory query. An empty result is not an error.
func (c *Client) Find(ctx context.Context, sess *Session, venueID string, partySize int, date string) ([]slots.Token, error) {
	params := map[string]string{
		"party_size": strconv.Itoa(partySize),
		"venue_id":   venueID,
		"day":        date,
		// deprecated but still required
		"lat":  "0",
		"long": "0",
	}
	status, body, err := c.do(ctx, sess, http.MethodGet, "/4/find", "", params, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, newStatusError(http.MethodGet, "/4/find", status, body)
	}
	var res findResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode find response: %w", err)
	}
	if len(res.Results.Venues) == 0 {
		return nil, nil
	}
	ss := res.Results.Venues[0].Slots
	out := make([]slots.Token, 0, len(ss))
	for _, s := range ss {
		if s.Config.Token != "" {
			out = append(out, slots.Token(s.Config.Token))
		}
	}
	return out, nil
}

type bookingConfig struct {
	Commit    int    `json:"commit"`
	ConfigID  string `json:"config_id"`
	Day       string `json:"day"`
	PartySize int64  `json:"party_size"`
}

type detailsResponse struct {
	BookToken struct {
		Value string `json:"value"`
	} `json:"book_token"`
	User struct {
		PaymentMethods []struct {
			ID int64 `json:"id"`
		} `json:"payment_methods"`
	} `json:"user"`
}

// Details reserves a book token for a slot and returns it with the user's
// default payment method.
func (c *Client) Details(ctx context.Context, sess *Session, token slots.Token, date string, partySize int) (string, int64, error) {
	jb, err := json.Marshal(bookingConfig{Commit: 1, ConfigID: string(token), Day: date, PartySize: int64(partySize)})
	if err != nil {
		return "", 0, err
	}
	status, body, err := c.do(ctx, sess, http.MethodPost, "/3/details", "application/json", nil, jb)
	if err != nil {
		return "", 0, err
	}
	if status >= 400 {
		return "", 0, newStatusError(http.MethodPost, "/3/details", status, body)
	}
	var details detailsResponse
	if err := json.Unmarshal(body, &details); err != nil {
		return "", 0, fmt.Errorf("decode details response: %w", err)
	}
	if details.BookToken.Value == "" {
		return "", 0, errors.New("details response has no book token")
	}
	if len(details.User.PaymentMethods) == 0 {
		return "", 0, ErrNoPaymentMethod
	}
	return details.BookToken.Value, details.User.PaymentMethods[0].ID, nil
}

type bookResponse struct {
	ResyToken string `json:"resy_token"`
}

// Book commits a book token. It returns the reservation token, or an error
// wrapping ErrRejected when the service answered but did not book.
func (c *Client) Book(ctx context.Context, sess *Session, bookToken string, paymentMethodID int64) (string, error) {
	pb, err := json.Marshal(struct {
		ID int64 `json:"id"`
	}{ID: paymentMethodID})
	if err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("book_token", bookToken)
	form.Set("struct_payment_method", string(pb))

	status, body, err := c.do(ctx, sess, http.MethodPost, "/3/book", "application/x-www-form-urlencoded", nil, []byte(form.Encode()))
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("%w: %v", ErrRejected, newStatusError(http.MethodPost, "/3/book", status, body))
	}
	var res bookResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("%w: decode book response: %v", ErrRejected, err)
	}
	if res.ResyToken == "" {
		return "", fmt.Errorf("%w: no resy_token in response", ErrRejected)
	}
	return res.ResyToken, nil
}

func (c *Client) do(ctx context.Context, sess *Session, method, path, contentType string, query map[string]string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Add("user-agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36")
	req.Header.Add("origin", "https://resy.com")
	req.Header.Add("referrer", "https://resy.com")
	req.Header.Add("x-origin", "https://resy.com")
	req.Header.Add("cache-control", "no-cache")
	if contentType != "" {
		req.Header.Add("content-type", contentType)
	}
	apiKey := c.apiKey
	if sess != nil {
		if sess.APIKey != "" {
			apiKey = sess.APIKey
		}
		if sess.AuthToken != "" {
			req.Header.Add("x-resy-auth-token", sess.AuthToken)
			req.Header.Add("x-resy-universal-auth", sess.AuthToken)
		}
	}
	req.Header.Add("authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, apiKey))

	if query != nil {
		q := req.URL.Query()
		for k, v := range query {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
