package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paylite/api/internal/domain"
	"github.com/paylite/api/internal/repository"
	"github.com/paylite/api/internal/service/account"
	"github.com/paylite/api/internal/service/auth"
	"github.com/paylite/api/internal/service/user"
	"github.com/paylite/api/pkg/config"
	jwtpkg "github.com/paylite/api/pkg/jwt"
)

const testSecret = "router-test-secret"

type stubRepo struct {
	users     []*domain.User
	accounts  map[string]*domain.Account
	updates   int
	updateErr error
	searchErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{accounts: make(map[string]*domain.Account)}
}

func (s *stubRepo) CreateUserWithAccount(ctx context.Context, u *domain.User, a *domain.Account) error {
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return repository.ErrDuplicate
		}
	}
	s.users = append(s.users, u)
	s.accounts[a.UserID] = a
	return nil
}

func (s *stubRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepo) UpdateUser(ctx context.Context, update repository.UserUpdate) error {
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	for _, u := range s.users {
		if u.ID == update.UserID {
			if update.PasswordHash != nil {
				u.PasswordHash = update.PasswordHash
			}
			if update.FirstName != nil {
				u.FirstName = *update.FirstName
			}
			if update.LastName != nil {
				u.LastName = *update.LastName
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *stubRepo) GetAccountByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	if acct, ok := s.accounts[userID]; ok {
		return acct, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepo) SearchUsers(ctx context.Context, filter string) ([]domain.User, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	matched := make([]domain.User, 0)
	for _, u := range s.users {
		if strings.Contains(u.FirstName, filter) || strings.Contains(u.LastName, filter) {
			matched = append(matched, *u)
		}
	}
	return matched, nil
}

func setupRouter(t *testing.T) (*Router, *stubRepo) {
	t.Helper()
	repo := newStubRepo()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{JWTSecret: testSecret, TokenTTL: time.Hour}
	router := NewRouter(log, auth.New(repo, log, cfg), user.New(repo, log), account.New(repo, log), NewMemoryRateLimiter(), nil)
	t.Cleanup(router.Close)
	return router, repo
}

func doJSON(t *testing.T, router *Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func signupBody() map[string]string {
	return map[string]string{
		"username":  "a@b.com",
		"password":  "secret1",
		"firstName": "A",
		"lastName":  "B",
	}
}

func TestSignupCreatesUserAndAccount(t *testing.T) {
	router, repo := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/signup", "", signupBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["message"] != "User created successfully" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("response missing token")
	}

	if len(repo.users) != 1 {
		t.Fatalf("expected one user, got %d", len(repo.users))
	}
	created := repo.users[0]
	account, ok := repo.accounts[created.ID]
	if !ok {
		t.Fatal("account not provisioned")
	}
	if account.Balance < 1 || account.Balance >= 10000 {
		t.Fatalf("balance out of range: %v", account.Balance)
	}

	claims, err := jwtpkg.Parse(token, testSecret)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.UserID != created.ID {
		t.Fatalf("token bound to %q, want %q", claims.UserID, created.ID)
	}
}

func TestSignupDuplicateAndInvalid(t *testing.T) {
	router, repo := setupRouter(t)

	if rec := doJSON(t, router, http.MethodPost, "/signup", "", signupBody()); rec.Code != http.StatusOK {
		t.Fatalf("first signup: %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/signup", "", signupBody())
	if rec.Code != statusIncorrectInput {
		t.Fatalf("duplicate signup: status %d", rec.Code)
	}
	if decodeBody(t, rec)["message"] != "Email already taken" {
		t.Fatalf("unexpected duplicate message: %s", rec.Body.String())
	}
	if len(repo.users) != 1 {
		t.Fatalf("second user record created: %d", len(repo.users))
	}

	bad := signupBody()
	bad["username"] = "not-an-email"
	rec = doJSON(t, router, http.MethodPost, "/signup", "", bad)
	if rec.Code != statusIncorrectInput {
		t.Fatalf("invalid signup: status %d", rec.Code)
	}
	if decodeBody(t, rec)["message"] != "Incorrect inputs" {
		t.Fatalf("unexpected invalid message: %s", rec.Body.String())
	}
}

func TestSigninFlows(t *testing.T) {
	router, repo := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/signup", "", signupBody())

	rec := doJSON(t, router, http.MethodPost, "/signin", "", map[string]string{
		"username": "a@b.com", "password": "secret1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin: status %d, body %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	claims, err := jwtpkg.Parse(token, testSecret)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.UserID != repo.users[0].ID {
		t.Fatalf("token bound to %q, want %q", claims.UserID, repo.users[0].ID)
	}

	rec = doJSON(t, router, http.MethodPost, "/signin", "", map[string]string{
		"username": "a@b.com", "password": "wrongpass",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/signin", "", map[string]string{
		"username": "missing@b.com", "password": "secret1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown user: status %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/signin", "", map[string]string{
		"username": "a@b.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password: status %d", rec.Code)
	}
}

func TestProfileRequiresValidToken(t *testing.T) {
	router, repo := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/signup", "", signupBody())

	update := map[string]string{"firstName": "Ada"}

	rec := doJSON(t, router, http.MethodPut, "/profile", "", update)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/profile", "garbage", update)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("malformed token: status %d", rec.Code)
	}

	expired, err := jwtpkg.GenerateToken(repo.users[0].ID, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rec = doJSON(t, router, http.MethodPut, "/profile", expired, update)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: status %d", rec.Code)
	}

	forged, err := jwtpkg.GenerateToken(repo.users[0].ID, "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rec = doJSON(t, router, http.MethodPut, "/profile", forged, update)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: status %d", rec.Code)
	}

	if repo.updates != 0 {
		t.Fatalf("store mutated %d times without valid token", repo.updates)
	}
}

func TestProfileUpdateAppliesChanges(t *testing.T) {
	router, repo := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/signup", "", signupBody())

	token, err := jwtpkg.GenerateToken(repo.users[0].ID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	rec := doJSON(t, router, http.MethodPut, "/profile", token, map[string]string{
		"firstName": "Ada",
		"password":  "newsecret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["message"] != "Updated successfully" {
		t.Fatalf("unexpected message: %s", rec.Body.String())
	}
	if repo.users[0].FirstName != "Ada" {
		t.Fatalf("first name not applied: %q", repo.users[0].FirstName)
	}

	// The rotated password signs in; the old one no longer does.
	rec = doJSON(t, router, http.MethodPost, "/signin", "", map[string]string{
		"username": "a@b.com", "password": "newsecret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin after rotation: status %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/signin", "", map[string]string{
		"username": "a@b.com", "password": "secret1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: status %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/profile", token, map[string]string{
		"password": "five5",
	})
	if rec.Code != statusIncorrectInput {
		t.Fatalf("short password update: status %d", rec.Code)
	}
}

func TestProfileEmptyUpdateIsNoOp(t *testing.T) {
	router, repo := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/signup", "", signupBody())

	token, err := jwtpkg.GenerateToken(repo.users[0].ID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	rec := doJSON(t, router, http.MethodPut, "/profile", token, map[string]string{})
	if rec.Code != http.StatusOK {
		t.Fatalf("empty update: status %d, body %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["message"] != "Updated successfully" {
		t.Fatalf("unexpected message: %s", rec.Body.String())
	}
	if repo.users[0].FirstName != "A" || repo.users[0].LastName != "B" {
		t.Fatalf("empty update mutated names: %q %q", repo.users[0].FirstName, repo.users[0].LastName)
	}
}

func TestStoreFailureAnswersGeneric(t *testing.T) {
	router, repo := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/signup", "", signupBody())

	repo.searchErr = errors.New("pg down")
	rec := doJSON(t, router, http.MethodGet, "/search", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("search with store down: status %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"internal server error"}` {
		t.Fatalf("unexpected body: %s", got)
	}

	token, err := jwtpkg.GenerateToken(repo.users[0].ID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	repo.updateErr = errors.New("pg down")
	rec = doJSON(t, router, http.MethodPut, "/profile", token, map[string]string{"firstName": "Ada"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("update with store down: status %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "pg down") {
		t.Fatalf("store error leaked to client: %s", rec.Body.String())
	}
}

func TestSearchFilters(t *testing.T) {
	router, _ := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/signup", "", signupBody())
	second := signupBody()
	second["username"] = "c@d.com"
	second["firstName"] = "Charlie"
	doJSON(t, router, http.MethodPost, "/signup", "", second)

	rec := doJSON(t, router, http.MethodGet, "/search", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d", rec.Code)
	}
	users, _ := decodeBody(t, rec)["users"].([]any)
	if len(users) != 2 {
		t.Fatalf("empty filter should list all users, got %d", len(users))
	}

	rec = doJSON(t, router, http.MethodGet, "/search?filter=Charlie", "", nil)
	users, _ = decodeBody(t, rec)["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("expected one match, got %d", len(users))
	}
	entry, _ := users[0].(map[string]any)
	if entry["username"] != "c@d.com" || entry["firstName"] != "Charlie" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, leaked := entry["password"]; leaked {
		t.Fatal("search result leaks password field")
	}

	rec = doJSON(t, router, http.MethodGet, "/search?filter=nobody", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("no-match search must not error: status %d", rec.Code)
	}
	users, _ = decodeBody(t, rec)["users"].([]any)
	if len(users) != 0 {
		t.Fatalf("expected empty result, got %d", len(users))
	}
}

func TestBalanceReturnsProvisionedAmount(t *testing.T) {
	router, repo := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/signup", "", signupBody())

	token, err := jwtpkg.GenerateToken(repo.users[0].ID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/balance", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: status %d, body %s", rec.Code, rec.Body.String())
	}
	balance, ok := decodeBody(t, rec)["balance"].(float64)
	if !ok {
		t.Fatalf("missing balance field: %s", rec.Body.String())
	}
	if balance != repo.accounts[repo.users[0].ID].Balance {
		t.Fatalf("balance %v does not match provisioned %v", balance, repo.accounts[repo.users[0].ID].Balance)
	}

	if rec := doJSON(t, router, http.MethodGet, "/balance", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated balance: status %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := setupRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/signup", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestSignupRateLimited(t *testing.T) {
	router, _ := setupRouter(t)

	var last int
	for i := 0; i <= rateLimitSignup; i++ {
		body := signupBody()
		body["username"] = "not-an-email" // rejected before the store
		rec := doJSON(t, router, http.MethodPost, "/signup", "", body)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exceeding limit, got %d", last)
	}
}
