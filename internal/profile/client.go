// Package profile fetches the user's autofill profile from the web app.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const httpTimeout = 15 * time.Second

// ErrUnavailable wraps every failure to obtain a profile.
var ErrUnavailable = errors.New("profile unavailable")

var validate = validator.New()

// Profile is the API representation. Every field is nullable.
type Profile struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone"`
	City        *string `json:"city"`
	Country     *string `json:"country"`
	LinkedInURL *string `json:"linkedin_url" validate:"omitempty,url"`
}

// Source provides the current profile.
type Source interface {
	GetProfile(ctx context.Context) (*Profile, error)
}

// Client fetches the profile over authenticated HTTPS.
type Client struct {
	BaseURL string
	Token   string
	client  *http.Client
}

// NewClient constructs a client with a shared HTTP client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = httpTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetProfile calls GET {base}/api/profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("%w: no base url configured", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/profile", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return &p, nil
}

// File reads the profile from a local JSON file.
type File struct {
	Path string
}

func (f File) GetProfile(_ context.Context) (*Profile, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, f.Path, err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, f.Path, err)
	}
	return &p, nil
}
