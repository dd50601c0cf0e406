// Package xui reads client traffic statistics from a 3x-ui panel.
package xui

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrClientNotFound = errors.New("panel client not found")
	ErrUnavailable    = errors.New("panel unavailable")

	errSession = errors.New("session rejected")
)

type Config struct {
	// BaseURL overrides Host/Port/Prefix, e.g. "https://panel.example:2053/secret".
	BaseURL     string
	Host        string
	Port        string
	Prefix      string
	Token       string
	Username    string
	Password    string
	InsecureTLS bool
	Timeout     time.Duration
}

// Enabled reports whether enough settings are present to reach a panel.
func (c Config) Enabled() bool {
	return c.BaseURL != "" || c.Host != ""
}

func (c Config) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	host := c.Host
	if c.Port != "" {
		host += ":" + c.Port
	}
	u := "https://" + host
	if p := strings.Trim(c.Prefix, "/"); p != "" {
		u += "/" + p
	}
	return u
}

// ClientStatus is the traffic view of one panel client.
type ClientStatus struct {
	Email          string
	Enabled        bool
	Expiry         time.Time
	TotalBytes     int64
	UsedBytes      int64
	RemainingBytes int64
}

// Unlimited reports a client without a traffic quota.
func (s ClientStatus) Unlimited() bool { return s.TotalBytes == 0 }

type Client struct {
	cfg  Config
	base string
	http *http.Client
	log  *zap.Logger

	loginMu  sync.Mutex
	loggedIn bool
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed panel certificates
	}
	return &Client{
		cfg:  cfg,
		base: cfg.base(),
		http: &http.Client{Transport: tr, Jar: jar, Timeout: cfg.Timeout},
		log:  log.Named("xui"),
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

type inbound struct {
	ID          int          `json:"id"`
	Remark      string       `json:"remark"`
	Settings    string       `json:"settings"`
	ClientStats []clientStat `json:"clientStats"`
}

type clientStat struct {
	Email      string `json:"email"`
	Enable     bool   `json:"enable"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	Total      int64  `json:"total"`
	ExpiryTime int64  `json:"expiryTime"`
}

type inboundSettings struct {
	Clients []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"clients"`
}

// Ping lists inbounds and discards the result.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.inbounds(ctx)
	return err
}

// ClientStatus finds a client by email, or by uuid when id is not nil.
func (c *Client) ClientStatus(ctx context.Context, email string, id *string) (ClientStatus, error) {
	list, err := c.inbounds(ctx)
	if err != nil {
		return ClientStatus{}, err
	}
	for _, in := range list {
		emails := map[string]bool{}
		if email != "" {
			emails[email] = true
		}
		if id != nil && *id != "" && in.Settings != "" {
			var s inboundSettings
			if err := json.Unmarshal([]byte(in.Settings), &s); err != nil {
				c.log.Debug("inbound settings not parsed", zap.Int("inbound", in.ID), zap.Error(err))
			}
			for _, cl := range s.Clients {
				if cl.ID == *id {
					emails[cl.Email] = true
				}
			}
		}
		for _, st := range in.ClientStats {
			if emails[st.Email] {
				return toStatus(st), nil
			}
		}
	}
	return ClientStatus{}, ErrClientNotFound
}

func toStatus(st clientStat) ClientStatus {
	used := st.Up + st.Down
	cs := ClientStatus{
		Email:      st.Email,
		Enabled:    st.Enable,
		TotalBytes: st.Total,
		UsedBytes:  used,
	}
	if st.Total > used {
		cs.RemainingBytes = st.Total - used
	}
	if st.ExpiryTime > 0 {
		cs.Expiry = time.UnixMilli(st.ExpiryTime).UTC()
	}
	return cs
}

func (c *Client) inbounds(ctx context.Context) ([]inbound, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/panel/api/inbounds/list", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("X-UI-Token", c.cfg.Token)
	}
	var list []inbound
	if err := c.do(req, &list); err != nil {
		if errors.Is(err, errSession) {
			c.loginMu.Lock()
			c.loggedIn = false
			c.loginMu.Unlock()
		}
		return nil, err
	}
	return list, nil
}

// login opens a cookie session when credentials are configured instead of a token.
func (c *Client) login(ctx context.Context) error {
	if c.cfg.Token != "" || c.cfg.Username == "" {
		return nil
	}
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.loggedIn {
		return nil
	}
	form := url.Values{"username": {c.cfg.Username}, "password": {c.cfg.Password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := c.do(req, nil); err != nil {
		return err
	}
	c.loggedIn = true
	c.log.Info("panel session opened")
	return nil
}

func (c *Client) do(req *http.Request, obj any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %w: status %d", ErrUnavailable, errSession, resp.StatusCode)
		}
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, req.Method, req.URL.Path, resp.StatusCode)
	}
	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if !ar.Success {
		return fmt.Errorf("%w: %s", ErrUnavailable, ar.Msg)
	}
	if obj == nil || len(ar.Obj) == 0 {
		return nil
	}
	if err := json.Unmarshal(ar.Obj, obj); err != nil {
		return fmt.Errorf("%w: decode obj: %v", ErrUnavailable, err)
	}
	return nil
}
