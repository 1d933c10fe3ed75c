package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"commcore/internal/domain"
)

// HTTPClient talks to a relay Server. It implements domain.RelayClient and
// domain.AuthClient.
type HTTPClient struct {
	Base string
	HTTP *http.Client

	mu    sync.RWMutex
	token string
}

// NewHTTPClient returns a client for the relay at base.
func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{Base: base, HTTP: http.DefaultClient}
}

// SetToken sets the bearer token sent with key and mailbox requests.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *HTTPClient) UploadKeys(ctx context.Context, bundle domain.KeyBundle) error {
	return c.do(ctx, http.MethodPost, "/keys", bundle, nil)
}

func (c *HTTPClient) ClaimKeys(ctx context.Context, username domain.Username) (domain.ClaimedKeys, error) {
	var out domain.ClaimedKeys
	err := c.do(ctx, http.MethodGet, "/keys/"+url.PathEscape(username.String()), nil, &out)
	return out, err
}

func (c *HTTPClient) SendMessage(ctx context.Context, env domain.Envelope) error {
	return c.do(ctx, http.MethodPost, "/msg/"+url.PathEscape(env.To.String()), env, nil)
}

func (c *HTTPClient) FetchMessages(ctx context.Context, username domain.Username, limit int) ([]domain.Envelope, error) {
	path := "/msg/" + url.PathEscape(username.String())
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var envs []domain.Envelope
	err := c.do(ctx, http.MethodGet, path, nil, &envs)
	return envs, err
}

func (c *HTTPClient) AckMessages(ctx context.Context, username domain.Username, count int) error {
	return c.do(ctx, http.MethodPost, "/msg/"+url.PathEscape(username.String())+"/ack", ackRequest{Count: count}, nil)
}

func (c *HTTPClient) RegisterStart(
	ctx context.Context,
	req domain.RegisterStartRequest,
) (domain.RegisterStartResponse, error) {
	var out domain.RegisterStartResponse
	err := c.do(ctx, http.MethodPost, "/auth/register/start", req, &out)
	return out, err
}

func (c *HTTPClient) RegisterFinish(ctx context.Context, req domain.RegisterFinishRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/register/finish", req, nil)
}

func (c *HTTPClient) LoginStart(
	ctx context.Context,
	req domain.LoginStartRequest,
) (domain.LoginStartResponse, error) {
	var out domain.LoginStartResponse
	err := c.do(ctx, http.MethodPost, "/auth/login/start", req, &out)
	return out, err
}

func (c *HTTPClient) LoginFinish(
	ctx context.Context,
	req domain.LoginFinishRequest,
) (domain.LoginFinishResponse, error) {
	var out domain.LoginFinishResponse
	err := c.do(ctx, http.MethodPost, "/auth/login/finish", req, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var eb errorBody
		if json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&eb) == nil {
			if known := errorFromCode(eb.Code); known != nil {
				return known
			}
		}
		return fmt.Errorf("relay %s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var (
	_ domain.RelayClient = (*HTTPClient)(nil)
	_ domain.AuthClient  = (*HTTPClient)(nil)
)
