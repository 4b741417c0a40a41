package unifi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"whoshome/internal/creds"
	"whoshome/internal/router"
)

func routerClient(name, mac string) router.Client {
	return router.Client{Name: name, MAC: mac}
}

// mockController is a fake UniFi controller. It authorizes requests by a
// session cookie, counts logins, records station commands and can be told
// to reject a number of requests with 401 regardless of the cookie.
type mockController struct {
	server *httptest.Server

	mu            sync.Mutex
	loginCount    int
	listCount     int
	commands      []map[string]string
	seenTokens    []string
	rejectNext    int
	failLogin     bool
	stations      []map[string]interface{}
	tokenSequence int64
}

func newMockController() *mockController {
	m := &mockController{
		stations: []map[string]interface{}{
			{"name": "phone-anna", "mac": "aa:bb:cc:dd:ee:01"},
			{"hostname": "bens-laptop", "mac": "aa:bb:cc:dd:ee:02"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", m.handleLogin)
	mux.HandleFunc("/proxy/network/api/s/default/rest/user", m.handleList)
	mux.HandleFunc("/proxy/network/api/s/default/stat/sta", m.handleList)
	mux.HandleFunc("/proxy/network/api/s/default/cmd/stamgr", m.handleCommand)

	m.server = httptest.NewTLSServer(mux)
	return m
}

func (m *mockController) host() string {
	return strings.TrimPrefix(m.server.URL, "https://")
}

func (m *mockController) close() {
	m.server.Close()
}

func (m *mockController) nextToken() string {
	return fmt.Sprintf("token-%d", atomic.AddInt64(&m.tokenSequence, 1))
}

func (m *mockController) handleLogin(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.loginCount++
	fail := m.failLogin
	m.mu.Unlock()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if fail {
		http.Error(w, "bad credentials", http.StatusBadRequest)
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		http.Error(w, "malformed login", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "TOKEN", Value: "session-cookie", Path: "/"})
	w.Header().Set("x-csrf-token", m.nextToken())
	w.WriteHeader(http.StatusOK)
}

// authorized implements the controller's session check and the forced
// rejection counter.
func (m *mockController) authorized(r *http.Request) bool {
	m.mu.Lock()
	m.seenTokens = append(m.seenTokens, r.Header.Get("x-csrf-token"))
	if m.rejectNext > 0 {
		m.rejectNext--
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	cookie, err := r.Cookie("TOKEN")
	return err == nil && cookie.Value == "session-cookie"
}

func (m *mockController) handleList(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	m.listCount++
	stations := m.stations
	m.mu.Unlock()

	w.Header().Set("x-csrf-token", m.nextToken())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": stations})
}

func (m *mockController) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var cmd map[string]string
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "malformed command", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.commands = append(m.commands, cmd)
	m.mu.Unlock()

	w.Header().Set("x-csrf-token", m.nextToken())
	w.WriteHeader(http.StatusOK)
}

func (m *mockController) lastCommand() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		return nil
	}
	return m.commands[len(m.commands)-1]
}

func newTestClient(t *testing.T, m *mockController) *Client {
	t.Helper()
	provider := creds.Static{Username: "admin", Password: "hunter2"}
	client, err := NewClient(m.host(), "default", provider, 0, NewTestLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestLoginOnFirstUnauthorized(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	clients, err := client.OnlineClients()
	if err != nil {
		t.Fatalf("OnlineClients failed: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}

	m.mu.Lock()
	logins, lists := m.loginCount, m.listCount
	m.mu.Unlock()
	if logins != 1 {
		t.Errorf("expected exactly one login request, got %d", logins)
	}
	if lists != 1 {
		t.Errorf("expected exactly one successful listing, got %d", lists)
	}
}

func TestNoReloginWhileSessionValid(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	for i := 0; i < 3; i++ {
		if _, err := client.OnlineClients(); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	m.mu.Lock()
	logins := m.loginCount
	m.mu.Unlock()
	if logins != 1 {
		t.Errorf("expected one login across three calls, got %d", logins)
	}
}

func TestCSRFTokenChainsAcrossCalls(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	if _, err := client.OnlineClients(); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := client.KnownClients(); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if _, err := client.OnlineClients(); err != nil {
		t.Fatalf("third call failed: %v", err)
	}

	m.mu.Lock()
	seen := append([]string(nil), m.seenTokens...)
	m.mu.Unlock()

	// First attempt carries no token (nothing stored yet, 401s), the
	// retried first call carries the login's token, and every later call
	// carries the token from the previous response.
	if seen[0] != "" {
		t.Errorf("first request should carry no token, got %q", seen[0])
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] == "" {
			t.Errorf("request %d carried no token", i)
		}
	}
	// Tokens are sequential in the mock, so each request must echo the
	// token issued immediately before it.
	last := seen[len(seen)-1]
	if last != fmt.Sprintf("token-%d", len(seen)-1) {
		t.Errorf("token did not chain: last request sent %q", last)
	}
}

func TestSecondUnauthorizedIsFinal(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	// Reject the original attempt and the post-login retry.
	m.mu.Lock()
	m.rejectNext = 2
	m.mu.Unlock()

	_, err := client.OnlineClients()
	if err == nil {
		t.Fatal("expected failure when retry is also rejected")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401 in error, got %d", statusErr.Status)
	}

	m.mu.Lock()
	logins, lists := m.loginCount, m.listCount
	m.mu.Unlock()
	if logins != 1 {
		t.Errorf("expected exactly one login attempt, got %d", logins)
	}
	if lists != 0 {
		t.Errorf("no listing should have succeeded, got %d", lists)
	}
}

func TestNon401FailureDoesNotTriggerLogin(t *testing.T) {
	mux := http.NewServeMux()
	var logins int32
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logins, 1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewTLSServer(mux)
	defer server.Close()

	provider := creds.Static{Username: "admin", Password: "hunter2"}
	client, err := NewClient(strings.TrimPrefix(server.URL, "https://"), "default", provider, 0, NewTestLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.OnlineClients()
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", statusErr.Status)
	}
	if atomic.LoadInt32(&logins) != 0 {
		t.Error("a non-401 failure must not trigger a login")
	}
}

func TestFailedLoginSurfacesAuthError(t *testing.T) {
	m := newMockController()
	defer m.close()

	m.mu.Lock()
	m.failLogin = true
	m.mu.Unlock()

	client := newTestClient(t, m)

	_, err := client.OnlineClients()
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}

	m.mu.Lock()
	logins := m.loginCount
	m.mu.Unlock()
	if logins != 1 {
		t.Errorf("login must not be retried internally, got %d attempts", logins)
	}
}

func TestMissingCredentialsFailBeforeAnyLoginRequest(t *testing.T) {
	m := newMockController()
	defer m.close()

	client, err := NewClient(m.host(), "default", creds.Static{}, 0, NewTestLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.OnlineClients()
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if !errors.Is(err, creds.ErrNotFound) {
		t.Errorf("expected error to wrap creds.ErrNotFound, got %v", err)
	}

	m.mu.Lock()
	logins := m.loginCount
	m.mu.Unlock()
	if logins != 0 {
		t.Errorf("no login HTTP request should be sent without credentials, got %d", logins)
	}
}

func TestNamelessClientGetsPlaceholderName(t *testing.T) {
	m := newMockController()
	defer m.close()

	m.mu.Lock()
	m.stations = []map[string]interface{}{
		{"mac": "aa:bb:cc:dd:ee:ff"},
	}
	m.mu.Unlock()

	client := newTestClient(t, m)

	clients, err := client.OnlineClients()
	if err != nil {
		t.Fatalf("OnlineClients failed: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
	if clients[0].Name != PlaceholderName {
		t.Errorf("expected placeholder name %q, got %q", PlaceholderName, clients[0].Name)
	}
	if clients[0].MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("unexpected mac %q", clients[0].MAC)
	}
}

func TestHostnameFallsBackBeforePlaceholder(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	clients, err := client.OnlineClients()
	if err != nil {
		t.Fatalf("OnlineClients failed: %v", err)
	}
	if clients[0].Name != "phone-anna" {
		t.Errorf("expected alias to win, got %q", clients[0].Name)
	}
	if clients[1].Name != "bens-laptop" {
		t.Errorf("expected hostname fallback, got %q", clients[1].Name)
	}
}

func TestBlockSendsBlockStationCommand(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	err := client.Block(routerClient("phone-anna", "aa:bb:cc:dd:ee:01"))
	if err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	cmd := m.lastCommand()
	if cmd["cmd"] != "block-sta" {
		t.Errorf("expected cmd block-sta, got %q", cmd["cmd"])
	}
	if cmd["mac"] != "aa:bb:cc:dd:ee:01" {
		t.Errorf("expected mac aa:bb:cc:dd:ee:01, got %q", cmd["mac"])
	}
}

func TestUnblockSendsUnblockStationCommand(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	err := client.Unblock(routerClient("phone-anna", "aa:bb:cc:dd:ee:01"))
	if err != nil {
		t.Fatalf("Unblock failed: %v", err)
	}

	cmd := m.lastCommand()
	if cmd["cmd"] != "unblock-sta" {
		t.Errorf("expected cmd unblock-sta, got %q", cmd["cmd"])
	}
}

func TestBlockRetriesWithFreshBodyAfterRelogin(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	// Warm up the session, then invalidate the next request so the POST
	// body has to be replayed from the clone.
	if _, err := client.OnlineClients(); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}
	m.mu.Lock()
	m.rejectNext = 1
	m.mu.Unlock()

	if err := client.Block(routerClient("x", "aa:bb:cc:dd:ee:02")); err != nil {
		t.Fatalf("Block after forced 401 failed: %v", err)
	}

	cmd := m.lastCommand()
	if cmd["cmd"] != "block-sta" || cmd["mac"] != "aa:bb:cc:dd:ee:02" {
		t.Errorf("replayed command body was corrupted: %v", cmd)
	}
}

func TestMalformedListingSurfacesDecodeError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "TOKEN", Value: "session-cookie", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	})
	server := httptest.NewTLSServer(mux)
	defer server.Close()

	provider := creds.Static{Username: "admin", Password: "hunter2"}
	client, err := NewClient(strings.TrimPrefix(server.URL, "https://"), "default", provider, 0, NewTestLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.OnlineClients()
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestConcurrentCallsKeepTokenConsistent(t *testing.T) {
	m := newMockController()
	defer m.close()

	client := newTestClient(t, m)

	// Establish the session first so the goroutines exercise the steady
	// state rather than racing the initial login.
	if _, err := client.OnlineClients(); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = client.OnlineClients()
			} else {
				_, err = client.KnownClients()
			}
			if err != nil {
				t.Errorf("concurrent call failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// The stored token must be a token the controller actually issued,
	// never a torn interleaving.
	client.mu.Lock()
	final := client.csrfToken
	client.mu.Unlock()
	if !strings.HasPrefix(final, "token-") {
		t.Errorf("stored token %q was never issued by the controller", final)
	}
}

func TestTokenUnchangedWhenHeaderAbsent(t *testing.T) {
	provider := creds.Static{Username: "a", Password: "b"}
	client, err := NewClient("router.local", "default", provider, 0, NewTestLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	client.csrfToken = "existing"

	resp := &http.Response{Header: http.Header{}}
	client.storeToken(resp)
	if client.csrfToken != "existing" {
		t.Errorf("token must not be cleared by a response without the header, got %q", client.csrfToken)
	}

	resp.Header.Set("x-csrf-token", "fresh")
	client.storeToken(resp)
	if client.csrfToken != "fresh" {
		t.Errorf("token must be replaced by the response header, got %q", client.csrfToken)
	}
}

func TestCloneRequiresReusableBody(t *testing.T) {
	// A plain io.Reader body leaves GetBody unset, which the guarded send
	// must reject as an internal defect instead of retrying blind.
	body := struct{ io.Reader }{strings.NewReader("{}")}
	req, err := http.NewRequest(http.MethodPost, "https://router.local/x", body)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	_, err = cloneRequest("test op", req)
	var invariantErr *InvariantError
	if !errors.As(err, &invariantErr) {
		t.Fatalf("expected InvariantError, got %T: %v", err, err)
	}

	// Requests the client itself builds always support cloning.
	jsonReq, err := http.NewRequest(http.MethodPost, "https://router.local/x", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	backup, err := cloneRequest("test op", jsonReq)
	if err != nil {
		t.Fatalf("cloneRequest failed: %v", err)
	}
	if backup.Body == nil {
		t.Error("clone must carry its own body")
	}
}

func TestNewClientNormalizesHost(t *testing.T) {
	provider := creds.Static{Username: "a", Password: "b"}
	client, err := NewClient("https://router.local/", "", provider, 0, NewTestLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.endpoints.login != "https://router.local/api/auth/login" {
		t.Errorf("unexpected login endpoint %q", client.endpoints.login)
	}
	if client.endpoints.command != "https://router.local/proxy/network/api/s/default/cmd/stamgr" {
		t.Errorf("unexpected command endpoint %q", client.endpoints.command)
	}

	if _, err := NewClient("", "default", provider, 0, NewTestLogger(t)); err == nil {
		t.Error("empty host should be rejected")
	}
}
