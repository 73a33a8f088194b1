// Package auth resolves the authenticated shop owner from the auth service
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ErrNotAuthenticated is returned when no user can be resolved
var ErrNotAuthenticated = errors.New("not authenticated")

// CookieName is the auth service's session cookie
const CookieName = "jwt"

// User is the signed-in shop owner
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Credential is the caller's token, forwarded as Bearer header and cookie
type Credential string

// Apply attaches the credential to an outgoing request
func (c Credential) Apply(req *http.Request) {
	if c == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+string(c))
	req.AddCookie(&http.Cookie{Name: CookieName, Value: string(c)})
}

// FromRequest reads the credential from the jwt cookie, then the Bearer header
func FromRequest(r *http.Request) Credential {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return Credential(c.Value)
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return Credential(h[len(prefix):])
	}
	return ""
}

// Client talks to the auth service
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client for the auth service at baseURL
// (e.g. http://localhost:5001)
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// CurrentUser returns the user behind cred
func (c *Client) CurrentUser(ctx context.Context, cred Credential) (*User, error) {
	if cred == "" {
		return nil, ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	cred.Apply(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: auth service returned status %d", ErrNotAuthenticated, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return decodeUser(body)
}

type wireUser struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
}

// decodeUser accepts {"data":{"user":{...}}}, {"user":{...}} or a bare user
func decodeUser(body []byte) (*User, error) {
	var envelope struct {
		Data *struct {
			User *wireUser `json:"user"`
		} `json:"data"`
		User *wireUser `json:"user"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}

	w := envelope.User
	if envelope.Data != nil && envelope.Data.User != nil {
		w = envelope.Data.User
	}
	if w == nil {
		var bare wireUser
		if err := json.Unmarshal(body, &bare); err != nil {
			return nil, fmt.Errorf("decoding user: %w", err)
		}
		w = &bare
	}

	id := idString(w.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: user has no id", ErrNotAuthenticated)
	}
	return &User{ID: id, Name: w.Name, Email: w.Email}, nil
}

// idString accepts numeric or string ids
func idString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String()
		}
	}
	return ""
}
