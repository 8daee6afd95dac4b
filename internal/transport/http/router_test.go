package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"courtside/internal/auth"
	"courtside/internal/authz"
	"courtside/internal/credential"
	"courtside/internal/domain"
	"courtside/internal/draft"
	"courtside/internal/feed"
	"courtside/internal/geo"
	"courtside/internal/objectstore"
	"courtside/internal/observability/logging"
	"courtside/internal/realtime"
	"courtside/internal/service"
	"courtside/internal/session"
	"courtside/internal/store"
	transport "courtside/internal/transport/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const testSecret = "test-secret"

type fakeAuth struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount
}

type fakeAccount struct {
	id       uuid.UUID
	password string
	nickname string
}

func mint(id uuid.UUID, email string) string {
	claims := jwt.MapClaims{
		"sub":   id.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		panic(err)
	}
	return tok
}

func (f *fakeAuth) tokens(email string, acct fakeAccount) *auth.Tokens {
	return &auth.Tokens{
		AccessToken:  mint(acct.id, email),
		RefreshToken: "refresh-" + acct.id.String(),
		ExpiresIn:    3600,
		User: auth.User{
			ID:           acct.id.String(),
			Email:        email,
			UserMetadata: map[string]any{"nickname": acct.nickname},
		},
	}
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (*auth.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		return nil, &auth.APIError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	return f.tokens(email, acct), nil
}

func (f *fakeAuth) SignUp(_ context.Context, email, password, nickname string) (*auth.SignUpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := fakeAccount{id: uuid.New(), password: password, nickname: nickname}
	f.accounts[email] = acct
	t := f.tokens(email, acct)
	return &auth.SignUpResult{User: t.User, Tokens: t}, nil
}

func (f *fakeAuth) ExchangeCode(context.Context, string, string) (*auth.Tokens, error) {
	return nil, &auth.APIError{Status: http.StatusBadRequest, Message: "bad code"}
}

func (f *fakeAuth) AuthorizeURL(provider, redirectTo, challenge string) string {
	return "https://auth.example/authorize?provider=" + provider + "&challenge=" + challenge
}

type noRefresh struct{}

func (noRefresh) Refresh(context.Context, string) (*auth.Tokens, error) {
	return nil, &auth.APIError{Status: http.StatusBadRequest, Message: "Invalid Refresh Token"}
}

func (noRefresh) SignOut(context.Context, string) error { return nil }

type stubGeocoder struct{}

func (stubGeocoder) Search(_ context.Context, q string) ([]geo.Place, error) {
	return []geo.Place{{Lat: 1, Lng: 2, Address: q}}, nil
}

func (stubGeocoder) Reverse(context.Context, float64, float64) (geo.Place, error) {
	return geo.Place{}, fmt.Errorf("no address")
}

type fixture struct {
	srv  *httptest.Server
	auth *fakeAuth
	hub  *feed.Hub
	svcs *service.Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Discard()

	db, err := store.Open(store.OpenConfig{DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	hub := feed.NewHub()
	t.Cleanup(func() { _ = hub.Close() })
	st := store.New(db,
		store.WithPublisher(hub),
		store.WithHasher(credential.NewArgon2idWithParams(credential.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})),
	)
	if err := st.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	root := t.TempDir()
	avatars, err := objectstore.NewDiskBucket(root, objectstore.BucketAvatars, "http://test/storage")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	attachments, err := objectstore.NewDiskBucket(root, objectstore.BucketAttachments, "http://test/storage")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	svcs := service.New(service.Deps{Store: st, Avatars: avatars, Attachments: attachments, Logger: logger, Async: func(f func()) { f() }})

	verifier := auth.NewHMACVerifier(testSecret, "")
	registry := session.NewRegistry(func() *session.Store {
		return session.New(noRefresh{}, verifier, session.Options{Logger: logger})
	}, time.Hour, logger)
	t.Cleanup(registry.Close)

	fa := &fakeAuth{accounts: map[string]fakeAccount{}}
	router := transport.NewRouter(transport.Deps{
		Services:   svcs,
		Auth:       fa,
		Sessions:   registry,
		Cookies:    session.CookieConfig{Name: "court_sid", RefreshName: "court_rt"},
		Gate:       authz.NewGate(authz.WithWait(2*time.Second), authz.WithLogger(logger)),
		Drafts:     draft.NewMemoryStore(),
		Feed:       hub,
		Realtime:   realtime.Options{BackoffInitial: 10 * time.Millisecond, BackoffMax: 50 * time.Millisecond, Logger: logger},
		Geocoder:   stubGeocoder{},
		StorageDir: root,
		PublicURL:  "http://test",
		Logger:     logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, auth: fa, hub: hub, svcs: svcs}
}

type client struct {
	t    *testing.T
	base string
	jar  http.CookieJar
	http *http.Client
}

func (f *fixture) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("jar: %v", err)
	}
	return &client{
		t:    t,
		base: f.srv.URL,
		jar:  jar,
		http: &http.Client{
			Jar:           jar,
			Timeout:       5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatalf("request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (c *client) signup(email, nickname string) domain.Identity {
	c.t.Helper()
	var out struct {
		Identity *domain.Identity `json:"identity"`
	}
	status := c.do(http.MethodPost, "/auth/signup", map[string]string{"email": email, "password": "pw123456", "nickname": nickname}, &out)
	if status != http.StatusOK || out.Identity == nil {
		c.t.Fatalf("signup %s: status %d", email, status)
	}
	return *out.Identity
}

func TestPublicEndpointsAndGate(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	if status := c.do(http.MethodGet, "/healthz", nil, nil); status != http.StatusOK {
		t.Fatalf("healthz: %d", status)
	}
	resp, err := c.http.Get(c.base + "/posts")
	if err != nil {
		t.Fatalf("get posts: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if status := c.do(http.MethodGet, "/login", nil, nil); status != http.StatusOK {
		t.Fatalf("login page should be public, got %d", status)
	}
}

func TestLeaguesListedBehindGate(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	ctx := context.Background()
	if _, err := f.svcs.Leagues.Create(ctx, "Spring Open", "Mixed 4v4"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.svcs.Leagues.Create(ctx, "  ", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("blank league name should be rejected, got %v", err)
	}

	if status := c.do(http.MethodGet, "/leagues", nil, nil); status != http.StatusFound {
		t.Fatalf("anonymous leagues request should redirect, got %d", status)
	}
	c.signup("l@example.com", "Libero")
	var leagues []domain.League
	if status := c.do(http.MethodGet, "/leagues", nil, &leagues); status != http.StatusOK {
		t.Fatalf("leagues: %d", status)
	}
	if len(leagues) != 1 || leagues[0].Name != "Spring Open" || leagues[0].Description == nil || *leagues[0].Description != "Mixed 4v4" {
		t.Fatalf("unexpected leagues: %+v", leagues)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	c.signup("a@example.com", "Ace")

	other := f.client(t)
	if status := other.do(http.MethodPost, "/auth/login", map[string]string{"email": "a@example.com", "password": "nope"}, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if status := other.do(http.MethodPost, "/auth/login", map[string]string{"email": "a@example.com", "password": "pw123456"}, nil); status != http.StatusOK {
		t.Fatalf("expected login, got %d", status)
	}
	if status := other.do(http.MethodGet, "/posts", nil, nil); status != http.StatusOK {
		t.Fatalf("signed in user should see posts, got %d", status)
	}
	if status := other.do(http.MethodPost, "/auth/logout", nil, nil); status != http.StatusNoContent {
		t.Fatalf("logout: %d", status)
	}
	if status := other.do(http.MethodGet, "/posts", nil, nil); status != http.StatusFound {
		t.Fatalf("signed out user should be redirected, got %d", status)
	}
}

func TestPostDraftLifecycle(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	c.signup("host@example.com", "Host")

	var form struct {
		Form   domain.PostInput `json:"form"`
		Source string           `json:"source"`
	}
	c.do(http.MethodGet, "/posts/new", nil, &form)
	if form.Source != string(draft.Blank) {
		t.Fatalf("expected blank form, got %q", form.Source)
	}

	if status := c.do(http.MethodPut, "/posts/new/draft", domain.PostInput{Title: "Sunday pickup"}, nil); status != http.StatusNoContent {
		t.Fatalf("save draft: %d", status)
	}
	c.do(http.MethodGet, "/posts/new", nil, &form)
	if form.Source != string(draft.FromDraft) || form.Form.Title != "Sunday pickup" {
		t.Fatalf("expected draft, got %q %+v", form.Source, form.Form)
	}

	if status := c.do(http.MethodPost, "/posts", domain.PostInput{Title: "Sunday pickup"}, nil); status != http.StatusBadRequest {
		t.Fatalf("missing content should be rejected, got %d", status)
	}
	var created struct {
		Post domain.Post `json:"post"`
	}
	if status := c.do(http.MethodPost, "/posts", domain.PostInput{Title: "Sunday pickup", Content: "Bring knee pads"}, &created); status != http.StatusCreated {
		t.Fatalf("create: %d", status)
	}
	c.do(http.MethodGet, "/posts/new", nil, &form)
	if form.Source != string(draft.Blank) {
		t.Fatalf("submit should clear the draft, got %q", form.Source)
	}

	var detail struct {
		ID      uuid.UUID `json:"id"`
		IsOwner bool      `json:"isOwner"`
	}
	c.do(http.MethodGet, "/posts/"+created.Post.ID.String(), nil, &detail)
	if detail.ID != created.Post.ID || !detail.IsOwner {
		t.Fatalf("unexpected detail %+v", detail)
	}

	other := f.client(t)
	other.signup("guest@example.com", "Guest")
	if status := other.do(http.MethodGet, "/posts/"+created.Post.ID.String()+"/edit", nil, nil); status != http.StatusForbidden {
		t.Fatalf("non-owner edit form should be forbidden, got %d", status)
	}
	if status := other.do(http.MethodPost, "/posts/"+created.Post.ID.String()+"/apply", nil, nil); status != http.StatusOK {
		t.Fatalf("apply: %d", status)
	}
	var applicants []service.Applicant
	c.do(http.MethodGet, "/posts/"+created.Post.ID.String()+"/applicants", nil, &applicants)
	if len(applicants) != 1 || applicants[0].Nickname != "Guest" {
		t.Fatalf("unexpected applicants %+v", applicants)
	}
}

func TestPrivateRoomJoin(t *testing.T) {
	f := newFixture(t)
	owner := f.client(t)
	owner.signup("owner@example.com", "Owner")

	var room domain.Room
	if status := owner.do(http.MethodPost, "/rooms", domain.RoomInput{Title: "Setters", Topic: "Drills", IsPrivate: true, Password: "spike"}, &room); status != http.StatusCreated {
		t.Fatalf("create room: %d", status)
	}
	if status := owner.do(http.MethodPost, "/rooms/"+room.ID.String()+"/messages", map[string]string{"content": "secret plan"}, nil); status != http.StatusCreated {
		t.Fatalf("owner post: %d", status)
	}

	guest := f.client(t)
	guest.signup("guest@example.com", "Guest")
	var detail struct {
		Access   string                    `json:"access"`
		Messages []service.RoomMessageView `json:"messages"`
	}
	guest.do(http.MethodGet, "/rooms/"+room.ID.String(), nil, &detail)
	if detail.Access != "need_password" || len(detail.Messages) != 0 {
		t.Fatalf("private room leaked: %+v", detail)
	}
	if status := guest.do(http.MethodPost, "/rooms/"+room.ID.String()+"/join", map[string]string{"password": "wrong"}, nil); status != http.StatusForbidden {
		t.Fatalf("wrong password should be rejected, got %d", status)
	}
	if status := guest.do(http.MethodPost, "/rooms/"+room.ID.String()+"/join", map[string]string{"password": ""}, nil); status != http.StatusBadRequest {
		t.Fatalf("empty password should be rejected locally, got %d", status)
	}
	if status := guest.do(http.MethodPost, "/rooms/"+room.ID.String()+"/join", map[string]string{"password": "spike"}, nil); status != http.StatusOK {
		t.Fatalf("join: %d", status)
	}
	guest.do(http.MethodGet, "/rooms/"+room.ID.String(), nil, &detail)
	if detail.Access != "member" || len(detail.Messages) != 1 || detail.Messages[0].AuthorNickname != "Owner" {
		t.Fatalf("member should see history: %+v", detail)
	}
}

func TestChatLiveReceivesNewMessages(t *testing.T) {
	f := newFixture(t)
	alice := f.client(t)
	alice.signup("alice@example.com", "Alice")
	bob := f.client(t)
	bobID := bob.signup("bob@example.com", "Bob")

	var chat domain.Chat
	if status := alice.do(http.MethodPost, "/chats", map[string]uuid.UUID{"userId": bobID.ID}, &chat); status != http.StatusOK {
		t.Fatalf("open chat: %d", status)
	}

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/chats/" + chat.ID.String() + "/live"
	dialer := websocket.Dialer{Jar: alice.jar, HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	defer conn.Close()

	type frame struct {
		Type  string           `json:"type"`
		Items []domain.Message `json:"items"`
	}
	read := func() frame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return fr
	}

	if fr := read(); fr.Type != "messages" || len(fr.Items) != 0 {
		t.Fatalf("expected empty history, got %+v", fr)
	}
	if status := bob.do(http.MethodPost, "/chats/"+chat.ID.String()+"/messages", map[string]string{"content": "see you at 7"}, nil); status != http.StatusCreated {
		t.Fatalf("bob send: %d", status)
	}
	for {
		fr := read()
		if len(fr.Items) == 1 {
			if fr.Items[0].Content != "see you at 7" {
				t.Fatalf("unexpected message %+v", fr.Items[0])
			}
			break
		}
	}

	if err := conn.WriteJSON(map[string]string{"content": "on my way"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		fr := read()
		if len(fr.Items) == 2 {
			break
		}
	}
}

func TestGeoReverseFallsBackToCoordinates(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	c.signup("map@example.com", "Mapper")

	var place geo.Place
	if status := c.do(http.MethodGet, "/geo/reverse?lat=37.5&lng=127", nil, &place); status != http.StatusOK {
		t.Fatalf("reverse: %d", status)
	}
	if place.Address != geo.CoordLabel(37.5, 127) {
		t.Fatalf("expected coordinate label, got %q", place.Address)
	}
	var places []geo.Place
	c.do(http.MethodGet, "/geo/search?q=Han+River", nil, &places)
	if len(places) != 1 || places[0].Address != "Han River" {
		t.Fatalf("unexpected search result %+v", places)
	}
}
