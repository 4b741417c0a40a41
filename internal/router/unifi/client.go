// Package unifi talks to the private web-management API of a UniFi Dream
// Router. The controller hands out short-lived cookie sessions plus a CSRF
// token; instead of tracking expiry, the client reacts to the first 401 by
// logging in again and replaying the request once.
package unifi

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"whoshome/internal/creds"
	"whoshome/internal/router"
)

const defaultTimeout = 30 * time.Second

// endpoints is the fixed URL set derived once from the host.
type endpoints struct {
	login   string
	known   string
	online  string
	command string
}

func newEndpoints(host, site string) endpoints {
	base := "https://" + host
	api := base + "/proxy/network/api/s/" + site
	return endpoints{
		login:   base + "/api/auth/login",
		known:   api + "/rest/user",
		online:  api + "/stat/sta",
		command: api + "/cmd/stamgr",
	}
}

// Client implements router.Router against a UniFi controller. Safe for
// concurrent use: the cookie jar is owned by the http.Client and the CSRF
// token sits behind a mutex that is never held across a network call.
type Client struct {
	http      *http.Client
	host      string
	endpoints endpoints
	creds     creds.Provider
	logger    Logger

	mu        sync.Mutex
	csrfToken string
}

var _ router.Router = (*Client)(nil)

// NewClient builds a client for the controller at host. The site is the
// controller site name, usually "default". A timeout of zero means the
// default of 30 seconds. Routers commonly run self-signed certificates, so
// certificate validation is disabled.
func NewClient(host, site string, provider creds.Provider, timeout time.Duration, logger Logger) (*Client, error) {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimRight(host, "/")
	if host == "" {
		return nil, fmt.Errorf("router host must not be empty")
	}
	if site == "" {
		site = "default"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	return &Client{
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		host:      host,
		endpoints: newEndpoints(host, site),
		creds:     provider,
		logger:    logger,
	}, nil
}

// KnownClients returns every client the controller has a record for.
func (c *Client) KnownClients() ([]router.Client, error) {
	c.logger.Infof("Getting list of known clients from %s", c.host)
	return c.listClients("known clients", c.endpoints.known)
}

// OnlineClients returns the clients currently connected.
func (c *Client) OnlineClients() ([]router.Client, error) {
	c.logger.Infof("Getting list of connected clients from %s", c.host)
	return c.listClients("online clients", c.endpoints.online)
}

// Block cuts network access for the client identified by MAC.
func (c *Client) Block(cl router.Client) error {
	c.logger.Infof("Blocking client %s (%s) on %s", cl.Name, cl.MAC, c.host)
	return c.stationCommand("block client", cmdBlockStation, cl.MAC)
}

// Unblock restores network access for the client identified by MAC.
func (c *Client) Unblock(cl router.Client) error {
	c.logger.Infof("Unblocking client %s (%s) on %s", cl.Name, cl.MAC, c.host)
	return c.stationCommand("unblock client", cmdUnblockStation, cl.MAC)
}

func (c *Client) listClients(op, url string) ([]router.Client, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &InvariantError{Op: op, Msg: fmt.Sprintf("building request: %v", err)}
	}

	resp, err := c.send(op, req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &DecodeError{Op: op, URL: url, Err: err}
	}

	clients := make([]router.Client, 0, len(list.Data))
	for _, s := range list.Data {
		clients = append(clients, router.Client{Name: s.displayName(), MAC: s.MAC})
	}
	return clients, nil
}

func (c *Client) stationCommand(op, cmd, mac string) error {
	req, err := c.newJSONRequest(op, c.endpoints.command, stationCommand{Cmd: cmd, MAC: mac})
	if err != nil {
		return err
	}

	resp, err := c.send(op, req)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// send runs the guarded-send protocol: attach the current CSRF token, keep
// a clone of the request, send, and on exactly 401 log in and replay the
// clone once. The token from the final response replaces the stored one;
// a response without the header leaves it unchanged.
func (c *Client) send(op string, req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set(csrfHeader, token)
	}

	// The body is single-use, so the backup has to exist before the first
	// attempt. Requests built by this client always support it.
	backup, err := cloneRequest(op, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: req.URL.String(), Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		drain(resp)
		c.logger.Debugf("%s: got 401 from %s, authenticating", op, c.host)
		if err := c.login(); err != nil {
			return nil, err
		}

		c.mu.Lock()
		token = c.csrfToken
		c.mu.Unlock()
		if token != "" {
			backup.Header.Set(csrfHeader, token)
		}

		c.logger.Debugf("%s: authenticated, sending request again", op)
		resp, err = c.http.Do(backup)
		if err != nil {
			return nil, &TransportError{Op: op, URL: backup.URL.String(), Err: err}
		}
		if !isSuccess(resp.StatusCode) {
			status := resp.StatusCode
			drain(resp)
			return nil, &StatusError{Op: op, URL: backup.URL.String(), Status: status}
		}

	case !isSuccess(resp.StatusCode):
		status := resp.StatusCode
		drain(resp)
		return nil, &StatusError{Op: op, URL: req.URL.String(), Status: status}
	}

	c.storeToken(resp)
	return resp, nil
}

// login fetches credentials and posts them to the login endpoint. The
// cookie jar picks up the session cookie as part of the exchange. Not
// retried: failures propagate to the guarded send that triggered it.
func (c *Client) login() error {
	cr, err := c.creds.Lookup(c.host)
	if err != nil {
		return &AuthError{Host: c.host, Err: fmt.Errorf("looking up credentials: %w", err)}
	}

	req, err := c.newJSONRequest("login", c.endpoints.login, loginRequest{
		Username: cr.Username,
		Password: cr.Password,
	})
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: "login", URL: c.endpoints.login, Err: err}
	}
	defer drain(resp)

	if !isSuccess(resp.StatusCode) {
		return &AuthError{Host: c.host, Err: fmt.Errorf("login endpoint returned status %d", resp.StatusCode)}
	}

	c.storeToken(resp)
	c.logger.Infof("Logged in to %s", c.host)
	return nil
}

func (c *Client) newJSONRequest(op, url string, body interface{}) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &InvariantError{Op: op, Msg: fmt.Sprintf("encoding request body: %v", err)}
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &InvariantError{Op: op, Msg: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// cloneRequest produces an independently sendable copy of a not-yet-sent
// request. http.Request.Clone shares the body reader, so the copy gets a
// fresh body from GetBody.
func cloneRequest(op string, req *http.Request) (*http.Request, error) {
	backup := req.Clone(req.Context())
	if req.Body == nil {
		return backup, nil
	}
	if req.GetBody == nil {
		return nil, &InvariantError{Op: op, Msg: "request body cannot be re-read for a retry"}
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, &InvariantError{Op: op, Msg: fmt.Sprintf("re-reading request body: %v", err)}
	}
	backup.Body = body
	return backup, nil
}

// storeToken replaces the stored CSRF token with the response's, if the
// response carries one. Tokens are never cleared implicitly.
func (c *Client) storeToken(resp *http.Response) {
	token := resp.Header.Get(csrfHeader)
	if token == "" {
		return
	}
	c.mu.Lock()
	c.csrfToken = token
	c.mu.Unlock()
}

func (s station) displayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Hostname != "" {
		return s.Hostname
	}
	return PlaceholderName
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// drain reads the rest of the body and closes it so the transport can
// reuse the connection.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
