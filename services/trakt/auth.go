package trakt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"tmdbhelper/services/cache"
)

// AuthState gates whether wrapped calls may go live or must serve cached data.
type AuthState int

const (
	Unauthorized AuthState = iota
	// AuthorizedSession means the token was validated by this process.
	AuthorizedSession
	// AuthorizedBootCycle means a token was validated earlier in this boot
	// and only needs silent re-validation.
	AuthorizedBootCycle
)

func (s AuthState) String() string {
	switch s {
	case AuthorizedSession:
		return "authorized_session"
	case AuthorizedBootCycle:
		return "authorized_boot_cycle"
	default:
		return "unauthorized"
	}
}

// ErrNoToken is returned when re-validation is attempted without stored credentials.
var ErrNoToken = errors.New("trakt: no stored token")

// Tokens are the OAuth credentials persisted between runs.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (t Tokens) valid(now time.Time) bool {
	return t.AccessToken != "" && (t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt))
}

func tokensFromResponse(resp *TokenResponse, now time.Time) Tokens {
	created := now
	if resp.CreatedAt > 0 {
		created = time.Unix(resp.CreatedAt, 0)
	}
	t := Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if resp.ExpiresIn > 0 {
		t.ExpiresAt = created.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return t
}

// BootFlag marks that authorization succeeded during the current boot. It lives
// in the OS temp dir, which does not survive a reboot.
type BootFlag struct {
	path string
}

func NewBootFlag(name string) *BootFlag {
	return &BootFlag{path: filepath.Join(os.TempDir(), name)}
}

func (f *BootFlag) IsSet() bool {
	if f == nil {
		return false
	}
	_, err := os.Stat(f.path)
	return err == nil
}

func (f *BootFlag) Set() error {
	if f == nil {
		return nil
	}
	return atomic.WriteFile(f.path, strings.NewReader(time.Now().UTC().Format(time.RFC3339)))
}

func (f *BootFlag) Clear() error {
	if f == nil {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TokenSaver persists refreshed credentials.
type TokenSaver func(Tokens) error

type loginAttempt struct {
	code *DeviceCodeResponse
	done chan struct{}
	err  error
}

// Authorizer owns the Trakt credentials and the authorization state machine.
type Authorizer struct {
	client *Client
	boot   *BootFlag
	save   TokenSaver
	now    func() time.Time

	// pollEvery overrides the device code interval when set
	pollEvery time.Duration

	mu             sync.Mutex
	tokens         Tokens
	session        bool
	loginRequested bool
	pending        *loginAttempt
}

func NewAuthorizer(client *Client, tokens Tokens, boot *BootFlag, save TokenSaver) *Authorizer {
	return &Authorizer{
		client: client,
		boot:   boot,
		save:   save,
		now:    time.Now,
		tokens: tokens,
	}
}

// State reports the current authorization state.
func (a *Authorizer) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session {
		return AuthorizedSession
	}
	if a.tokens.AccessToken != "" && a.boot.IsSet() {
		return AuthorizedBootCycle
	}
	return Unauthorized
}

// AccessToken returns the current bearer token or "".
func (a *Authorizer) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens.AccessToken
}

// LoginRequested reports whether a device login was started, so gated calls
// with no cached data may wait on the interactive flow.
func (a *Authorizer) LoginRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loginRequested
}

// Reauthorize silently re-validates stored credentials, refreshing them when expired.
func (a *Authorizer) Reauthorize(ctx context.Context) error {
	a.mu.Lock()
	tokens := a.tokens
	a.mu.Unlock()

	if tokens.AccessToken == "" {
		return ErrNoToken
	}
	if tokens.valid(a.now()) {
		a.mu.Lock()
		a.session = true
		a.mu.Unlock()
		return nil
	}
	if tokens.RefreshToken == "" {
		return fmt.Errorf("token expired at %s: %w", tokens.ExpiresAt.Format(time.RFC3339), ErrNoToken)
	}

	resp, err := a.client.RefreshAccessToken(ctx, tokens.RefreshToken)
	if err != nil {
		if clearErr := a.boot.Clear(); clearErr != nil {
			log.Printf("[trakt] clear boot flag: %v", clearErr)
		}
		return fmt.Errorf("refresh token: %w", err)
	}
	a.authorized(tokensFromResponse(resp, a.now()))
	log.Printf("[trakt] access token refreshed")
	return nil
}

func (a *Authorizer) authorized(tokens Tokens) {
	a.mu.Lock()
	a.tokens = tokens
	a.session = true
	a.loginRequested = false
	a.mu.Unlock()

	if err := a.boot.Set(); err != nil {
		log.Printf("[trakt] set boot flag: %v", err)
	}
	if a.save != nil {
		if err := a.save(tokens); err != nil {
			log.Printf("[trakt] save tokens: %v", err)
		}
	}
}

// StartLogin begins the device code flow and returns the code the user must
// enter. A login already in progress is reused.
func (a *Authorizer) StartLogin(ctx context.Context) (*DeviceCodeResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginRequested = true
	if a.pending != nil {
		select {
		case <-a.pending.done:
		default:
			return a.pending.code, nil
		}
	}

	code, err := a.client.GetDeviceCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("device code: %w", err)
	}
	log.Printf("[trakt] authorize this device: visit %s and enter code %s", code.VerificationURL, code.UserCode)

	attempt := &loginAttempt{code: code, done: make(chan struct{})}
	a.pending = attempt
	go a.poll(attempt)
	return code, nil
}

func (a *Authorizer) poll(attempt *loginAttempt) {
	defer close(attempt.done)

	interval := time.Duration(attempt.code.Interval) * time.Second
	if a.pollEvery > 0 {
		interval = a.pollEvery
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	expires := time.Duration(attempt.code.ExpiresIn) * time.Second
	if expires <= 0 {
		expires = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), expires)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			attempt.err = fmt.Errorf("device login timed out: %w", ctx.Err())
			log.Printf("[trakt] %v", attempt.err)
			return
		case <-ticker.C:
			resp, err := a.client.PollForToken(ctx, attempt.code.DeviceCode)
			if err != nil {
				attempt.err = err
				log.Printf("[trakt] device login failed: %v", err)
				return
			}
			if resp == nil {
				continue
			}
			a.authorized(tokensFromResponse(resp, a.now()))
			log.Printf("[trakt] device login succeeded")
			return
		}
	}
}

// Login runs the interactive device flow and blocks until it completes.
func (a *Authorizer) Login(ctx context.Context) error {
	if a.State() == AuthorizedSession {
		return nil
	}
	if _, err := a.StartLogin(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	attempt := a.pending
	a.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Authority is the part of the Authorizer consulted by Gate.
type Authority interface {
	State() AuthState
	Reauthorize(ctx context.Context) error
	LoginRequested() bool
	Login(ctx context.Context) error
}

// Gate wraps a call that needs a logged-in session. Without authorization the
// call runs cache only; when that yields nothing and a login was requested the
// interactive flow runs and, on success, the call goes live.
func Gate[T any](auth Authority, authorize bool, call cache.Call[T]) cache.Call[T] {
	return func(ctx context.Context) (T, error) {
		if !authorize || auth == nil {
			return call(ctx)
		}
		switch auth.State() {
		case AuthorizedSession:
			return call(ctx)
		case AuthorizedBootCycle:
			err := auth.Reauthorize(ctx)
			if err == nil {
				return call(ctx)
			}
			log.Printf("[trakt] silent re-authorization failed: %v", err)
		}

		res, err := call(cache.WithCacheOnly(ctx))
		if err != nil {
			log.Printf("[trakt] cached call failed: %v", err)
		}
		if cache.IsEmpty(res) && auth.LoginRequested() {
			if err := auth.Login(ctx); err != nil {
				log.Printf("[trakt] login: %v", err)
				return res, nil
			}
			return call(ctx)
		}
		return res, nil
	}
}
