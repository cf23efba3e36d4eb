package ugphone

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/snagbot/internal/model"
)

// fakeAPI simulates the UgPhone API with per-endpoint overrides. Endpoints
// without an override answer with a working happy-path response.
type fakeAPI struct {
	configList func(w http.ResponseWriter, r *http.Request)
	mealList   func(w http.ResponseWriter, r *http.Request)
	queryPrice func(w http.ResponseWriter, r *http.Request)
	payment    func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/apiv1/fee/newPackage", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 200, "msg": "ok"}`)
	})
	mux.HandleFunc("/api/apiv1/info/configList2", orDefault(f.configList,
		`{"code": 200, "msg": "ok", "data": {"list": [{"config_name": "UVIP", "android_version": [{"config_id": "cfg-1"}]}]}}`))
	mux.HandleFunc("/api/apiv1/info/mealList", orDefault(f.mealList,
		`{"code": 200, "msg": "ok", "data": {"list": {"subscription": [{"network_id": "net-1"}]}}}`))
	mux.HandleFunc("/api/apiv1/fee/queryResourcePrice", orDefault(f.queryPrice,
		`{"code": 200, "msg": "ok", "data": {"amount_id": "amt-1"}}`))
	mux.HandleFunc("/api/apiv1/fee/payment", orDefault(f.payment,
		`{"code": 200, "msg": "ok", "data": {"order_id": "ORD-777"}}`))
	return mux
}

func orDefault(override func(http.ResponseWriter, *http.Request), body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if override != nil {
			override(w, r)
			return
		}
		fmt.Fprint(w, body)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL})
}

func testAccount() *model.Account {
	return &model.Account{ChatID: 1, LoginID: "ug-1", AccessToken: "tok-1"}
}

func TestAttemptSuccess(t *testing.T) {
	var sawToken, sawLoginID string
	api := &fakeAPI{
		configList: func(w http.ResponseWriter, r *http.Request) {
			sawToken = r.Header.Get("Access-Token")
			sawLoginID = r.Header.Get("Login-Id")
			fmt.Fprint(w, `{"code": 200, "msg": "ok", "data": {"list": [{"config_name": "UVIP", "android_version": [{"config_id": "cfg-1"}]}]}}`)
		},
	}
	c := newTestClient(t, api)

	out := c.Attempt(context.Background(), testAccount())
	if out.Kind != KindSuccess {
		t.Fatalf("kind = %q, want %q (detail: %s)", out.Kind, KindSuccess, out.Detail)
	}
	if out.OrderID != "ORD-777" {
		t.Errorf("order id = %q, want %q", out.OrderID, "ORD-777")
	}
	if sawToken != "tok-1" || sawLoginID != "ug-1" {
		t.Errorf("auth headers = (%q, %q), want (tok-1, ug-1)", sawToken, sawLoginID)
	}
}

func TestAttemptAlreadyOwnedWhenTrialNotListed(t *testing.T) {
	api := &fakeAPI{
		configList: func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": 200, "msg": "ok", "data": {"list": [{"config_name": "Standard", "android_version": [{"config_id": "cfg-9"}]}]}}`)
		},
	}
	c := newTestClient(t, api)

	out := c.Attempt(context.Background(), testAccount())
	if out.Kind != KindAlreadyOwned {
		t.Errorf("kind = %q, want %q", out.Kind, KindAlreadyOwned)
	}
}

func TestAttemptAlreadyOwnedOnRepeatActivity(t *testing.T) {
	api := &fakeAPI{
		queryPrice: func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": 400, "msg": "Do not repeat the activity"}`)
		},
	}
	c := newTestClient(t, api)

	out := c.Attempt(context.Background(), testAccount())
	if out.Kind != KindAlreadyOwned {
		t.Errorf("kind = %q, want %q", out.Kind, KindAlreadyOwned)
	}
}

func TestAttemptNotYetAvailable(t *testing.T) {
	api := &fakeAPI{
		queryPrice: func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": 400, "msg": "Sold out, please try again later"}`)
		},
	}
	c := newTestClient(t, api)

	out := c.Attempt(context.Background(), testAccount())
	if out.Kind != KindNotYetAvailable {
		t.Errorf("kind = %q, want %q", out.Kind, KindNotYetAvailable)
	}
}

func TestAttemptAuthError(t *testing.T) {
	api := &fakeAPI{
		configList: func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": 401, "msg": "token invalid or expired"}`)
		},
	}
	c := newTestClient(t, api)

	out := c.Attempt(context.Background(), testAccount())
	if out.Kind != KindAuthError {
		t.Errorf("kind = %q, want %q", out.Kind, KindAuthError)
	}
}

func TestAttemptServiceErrorOn5xx(t *testing.T) {
	api := &fakeAPI{
		configList: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}
	c := newTestClient(t, api)

	out := c.Attempt(context.Background(), testAccount())
	if out.Kind != KindServiceError {
		t.Errorf("kind = %q, want %q", out.Kind, KindServiceError)
	}
}

func TestAttemptServiceErrorOnGarbageBody(t *testing.T) {
	api := &fakeAPI{
		payment: func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>maintenance</html>`)
		},
	}
	c := newTestClient(t, api)

	out := c.Attempt(context.Background(), testAccount())
	if out.Kind != KindServiceError {
		t.Errorf("kind = %q, want %q", out.Kind, KindServiceError)
	}
}

func TestAttemptServiceErrorOnAmbiguousFailure(t *testing.T) {
	// Unrecognized API messages classify conservatively as retryable.
	api := &fakeAPI{
		payment: func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": 400, "msg": "system busy"}`)
		},
	}
	c := newTestClient(t, api)

	out := c.Attempt(context.Background(), testAccount())
	if out.Kind != KindServiceError {
		t.Errorf("kind = %q, want %q", out.Kind, KindServiceError)
	}
}

func TestValidate(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	if err := c.Validate(context.Background(), "tok-1", "ug-1"); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestValidateRejected(t *testing.T) {
	api := &fakeAPI{
		configList: func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": 401, "msg": "token invalid"}`)
		},
	}
	c := newTestClient(t, api)
	if err := c.Validate(context.Background(), "tok-bad", "ug-1"); err == nil {
		t.Error("expected error for rejected credentials")
	}
}
