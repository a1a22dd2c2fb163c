package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ashureev/jailbreak-labs/internal/domain"
)

type fakeProfiles struct {
	mu      sync.Mutex
	ensured []string
	err     error
}

func (f *fakeProfiles) EnsureProfile(_ context.Context, p *domain.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, p.ID)
	return f.err
}

func serve(t *testing.T, profiles ProfileEnsurer, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	h := Middleware(profiles, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareIssuesIdentity(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{}
	rec, userID := serve(t, profiles, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !isValidAnonID(userID) {
		t.Fatalf("user id %q is not a valid anonymous id", userID)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != userID {
		t.Fatalf("cookies = %v, want %s=%s", cookies, AnonCookieName, userID)
	}
	if len(profiles.ensured) != 1 || profiles.ensured[0] != userID {
		t.Errorf("ensured = %v, want [%s]", profiles.ensured, userID)
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	t.Parallel()

	const existing = "anon_0123456789abcdef0123456789abcdef"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: existing})

	_, userID := serve(t, &fakeProfiles{}, req)
	if userID != existing {
		t.Errorf("user id = %q, want %q", userID, existing)
	}
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "admin"})

	_, userID := serve(t, &fakeProfiles{}, req)
	if userID == "admin" || !isValidAnonID(userID) {
		t.Errorf("user id = %q, want a fresh anonymous id", userID)
	}
}

func TestMiddlewareToleratesStoreFailure(t *testing.T) {
	t.Parallel()

	rec, userID := serve(t, &fakeProfiles{err: errors.New("database is locked")}, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent || userID == "" {
		t.Errorf("status = %d, user = %q; want request to proceed", rec.Code, userID)
	}
}

func TestWithUserID(t *testing.T) {
	t.Parallel()

	ctx := WithUserID(context.Background(), "anon_0123456789abcdef0123456789abcdef")
	if got := NameFromContext(ctx); got != "agent-89abcdef" {
		t.Errorf("NameFromContext() = %q, want agent-89abcdef", got)
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Error("UserIDFromContext(empty) should be empty")
	}
}
