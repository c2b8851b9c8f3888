package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-user-service/internal/core/auth"
	"go-user-service/internal/domain"
	"go-user-service/internal/feature/user"
	"go-user-service/internal/roles"
	"go-user-service/internal/transport/http/handler"
	"go-user-service/internal/transport/http/router"
	"go-user-service/pkg/utils"
)

func init() { gin.SetMode(gin.TestMode) }

// memStore is an in-memory domain.UserStore. It enforces the same
// uniqueness rules the database does so handler-level duplicate
// mapping can be exercised.
type memStore struct {
	mu    sync.Mutex
	users map[string]user.Model
	err   error // when set, every operation fails with it
}

func newMemStore() *memStore { return &memStore{users: map[string]user.Model{}} }

func (s *memStore) put(m user.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[m.ID] = m
}

func (s *memStore) get(id string) (user.Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.users[id]
	return m, ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) ByID(_ context.Context, id string) (*user.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.users[id]; ok {
		cp := m
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) ByUsername(_ context.Context, username string) (*user.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.users {
		if m.Username == username {
			cp := m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) ByEmail(_ context.Context, email string) ([]user.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []user.Model
	for _, m := range s.users {
		if m.Email == email {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) ByVerificationToken(_ context.Context, token string) (*user.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.users {
		if token != "" && m.VerificationToken == token {
			cp := m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) ByResetToken(_ context.Context, token string) ([]user.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []user.Model
	for _, m := range s.users {
		if token != "" && m.ResetToken == token {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) ByIDs(_ context.Context, ids []string) ([]user.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []user.Model
	for _, id := range ids {
		if m, ok := s.users[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) Search(_ context.Context, q string, offset, limit int) ([]user.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []user.Model
	for _, m := range s.users {
		if q == "" || strings.Contains(strings.ToLower(m.Username), strings.ToLower(q)) {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memStore) Create(_ context.Context, m *user.Model) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == m.Username {
			return domain.ErrDuplicateUsername
		}
		if u.Email == m.Email {
			return domain.ErrDuplicateEmail
		}
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.users[m.ID] = *m
	return nil
}

func (s *memStore) Save(_ context.Context, m *user.Model) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.UpdatedAt = time.Now()
	s.users[m.ID] = *m
	return nil
}

func (s *memStore) UpdateFields(_ context.Context, id string, fields map[string]any) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.users[id]
	if !ok {
		return nil // partial update against a missing row touches nothing
	}
	for k, v := range fields {
		switch k {
		case "username":
			m.Username = v.(string)
		case "email":
			m.Email = v.(string)
		case "display_name":
			m.DisplayName = v.(string)
		case "first_name":
			m.FirstName = v.(string)
		case "last_name":
			m.LastName = v.(string)
		case "role":
			m.Role = v.(string)
		case "subroles":
			m.Subroles = v.(user.StringSet)
		case "password":
			m.Password = v.(string)
		case "updated_at":
			m.UpdatedAt = v.(time.Time)
		}
	}
	s.users[id] = m
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *memStore) FlushSubroles(_ context.Context, role string, subroles user.StringSet) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.users {
		if m.Role == role {
			m.Subroles = subroles
			s.users[id] = m
			n++
		}
	}
	return n, nil
}

func (s *memStore) RemoveSubrole(_ context.Context, label string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.users {
		if m.Subroles.Contains(label) {
			m.Subroles = m.Subroles.Without(label)
			s.users[id] = m
			n++
		}
	}
	return n, nil
}

// fakeMailer records sends and can be told to fail.
type fakeMailer struct {
	mu      sync.Mutex
	verify  []string // recipient emails
	resets  []string
	failErr error
}

func (f *fakeMailer) IsEnabled() bool { return true }

func (f *fakeMailer) SendEmailVerify(email, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.verify = append(f.verify, email)
	return nil
}

func (f *fakeMailer) SendPasswordReset(email, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.resets = append(f.resets, email)
	return nil
}

func (f *fakeMailer) sentVerify() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verify)
}

type harness struct {
	api    *gin.Engine
	admin  *gin.Engine
	store  *memStore
	mailer *fakeMailer
	jwter  *auth.JWTer
	reg    *roles.Registry
}

type harnessOpts struct {
	registerEnabled     bool
	requireVerification bool
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()

	store := newMemStore()
	mailer := &fakeMailer{}
	log := zap.NewNop()
	jwter := &auth.JWTer{Secret: []byte("test-secret"), Issuer: "test", TTL: time.Hour}
	reg := roles.New("user", "admin", map[string][]string{
		"editor": {"editor", "user"},
	})
	policy, err := user.NewPolicy(`^\S{8,64}$`, "Password must be 8 to 64 characters with no spaces")
	require.NoError(t, err)

	users := handler.NewUserHandler(store, reg, nil, log, "www.gravatar.com")
	authH := handler.NewAuthHandler(store, reg, mailer, policy, jwter, log, handler.AuthOpts{
		RegisterEnabled:     o.registerEnabled,
		RequireVerification: o.requireVerification,
		TokenTTL:            24 * time.Hour,
		AvatarHost:          "www.gravatar.com",
	})
	adminH := handler.NewAdminHandler(store, reg, log)

	return &harness{
		api:    router.NewAPIEngine(log, jwter, users, authH),
		admin:  router.NewAdminEngine(log, jwter, reg.AdminRole(), adminH),
		store:  store,
		mailer: mailer,
		jwter:  jwter,
		reg:    reg,
	}
}

// seed inserts a user directly into the store and returns it.
func (h *harness) seed(t *testing.T, username, role string, mut ...func(*user.Model)) user.Model {
	t.Helper()
	hash, err := utils.HashPassword("NewStrongP@ss1")
	require.NoError(t, err)
	m := user.Model{
		ID:       utils.NewID(),
		Username: username,
		Email:    username + "@example.com",
		Password: hash,
		Role:     role,
		Subroles: h.reg.SubrolesFor(role),
		Verified: true,
	}
	for _, f := range mut {
		f(&m)
	}
	h.store.put(m)
	return m
}

func (h *harness) token(t *testing.T, m user.Model) string {
	t.Helper()
	tok, err := h.jwter.Issue(m.ID, m.Role, m.Subroles)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, e *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}
