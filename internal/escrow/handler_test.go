package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/order_stake/internal/ledger"
)

func setupHandlerApp(t *testing.T, opts Options) (*fiber.App, *Service) {
	t.Helper()
	return setupHandlerAppWithConfig(t, opts, fiber.Config{Immutable: true})
}

func setupHandlerAppWithConfig(t *testing.T, opts Options, cfg fiber.Config) (*fiber.App, *Service) {
	t.Helper()
	svc := newTestService(t, opts)
	h := NewHandler(svc)

	app := fiber.New(cfg)
	api := app.Group("/api/v1")
	api.Get("/locks/count", h.Count)
	api.Get("/locks", h.ListLocks)
	api.Put("/locks/:account", h.PutLock)
	api.Get("/locks/:account", h.GetLock)
	api.Get("/unlock-time", h.UnlockTime)
	api.Get("/weight", h.Weight)
	api.Post("/enrollments", h.Enroll)
	api.Get("/users/:num/order", h.UserOrder)
	api.Get("/params", h.Params)
	return app, svc
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if resp.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSON {
		if err := json.Unmarshal(payload, &out); err != nil {
			t.Fatalf("decode body %q: %v", payload, err)
		}
	}
	return resp.StatusCode, out
}

func TestHandler_PutAndGetLock(t *testing.T) {
	app, _ := setupHandlerApp(t, Options{})

	status, body := doRequest(t, app, fiber.MethodPut, "/api/v1/locks/alice.near",
		`{"amount":"340282366920938463463374607431768211455","created_at":1000}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d (%v)", fiber.StatusOK, status, body)
	}
	if body["amount"] != "340282366920938463463374607431768211455" {
		t.Fatalf("unexpected amount %v", body["amount"])
	}

	status, body = doRequest(t, app, fiber.MethodGet, "/api/v1/locks/alice.near", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
	if got := uint64(body["unlock_time"].(float64)); got != 1_000+LockDurationMs {
		t.Fatalf("expected unlock time %d got %d", 1_000+LockDurationMs, got)
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	app, svc := setupHandlerApp(t, Options{Policy: ExpiryStrict})

	cases := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"missing lock", fiber.MethodGet, "/api/v1/locks/nobody", "", fiber.StatusNotFound},
		{"bad account", fiber.MethodPut, "/api/v1/locks/Bad!", `{"amount":"1"}`, fiber.StatusBadRequest},
		{"bad amount", fiber.MethodPut, "/api/v1/locks/alice", `{"amount":"-5"}`, fiber.StatusBadRequest},
		{"amount beyond 128 bits", fiber.MethodPut, "/api/v1/locks/alice", `{"amount":"340282366920938463463374607431768211456"}`, fiber.StatusBadRequest},
		{"zero epochs", fiber.MethodGet, "/api/v1/unlock-time?epochs=0&at=0", "", fiber.StatusBadRequest},
		{"unparsable query", fiber.MethodGet, "/api/v1/weight?at=soon", "", fiber.StatusBadRequest},
		{"bad user number", fiber.MethodGet, "/api/v1/users/x/order", "", fiber.StatusBadRequest},
	}
	for _, tc := range cases {
		status, _ := doRequest(t, app, tc.method, tc.target, tc.body)
		if status != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, status)
		}
	}

	ledger.SeedLock(svc.Ledger(), "stale", 10, 1)
	status, _ := doRequest(t, app, fiber.MethodGet, "/api/v1/weight?at=5", "")
	if status != fiber.StatusConflict {
		t.Fatalf("expired lock: expected %d got %d", fiber.StatusConflict, status)
	}
}

func TestHandler_WeightOverflow(t *testing.T) {
	app, _ := setupHandlerApp(t, Options{})

	status, _ := doRequest(t, app, fiber.MethodPut, "/api/v1/locks/whale",
		`{"amount":"340282366920938463463374607431768211455","created_at":0}`)
	if status != fiber.StatusOK {
		t.Fatalf("put: expected %d got %d", fiber.StatusOK, status)
	}
	status, _ = doRequest(t, app, fiber.MethodGet, "/api/v1/weight?at=0", "")
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, status)
	}
}

func TestHandler_EnrollAndWeight(t *testing.T) {
	app, _ := setupHandlerApp(t, Options{})

	status, body := doRequest(t, app, fiber.MethodPost, "/api/v1/enrollments",
		`{"start_num":100,"count":3,"suffix":"","current_time":0}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d (%v)", fiber.StatusCreated, status, body)
	}
	if body["users_num"].(float64) != 3 {
		t.Fatalf("expected 3 users, got %v", body["users_num"])
	}

	status, body = doRequest(t, app, fiber.MethodGet, "/api/v1/users/101/order", "")
	if status != fiber.StatusOK || body["order"] != "101" {
		t.Fatalf("unexpected order response %d %v", status, body)
	}

	status, body = doRequest(t, app, fiber.MethodGet, "/api/v1/weight?at=0", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
	// 100*730/360 + 101*730/360 + 102*730/360
	if body["ve_order_sum"] != "612" {
		t.Fatalf("expected ve_order_sum 612 got %v", body["ve_order_sum"])
	}

	status, body = doRequest(t, app, fiber.MethodGet, "/api/v1/locks/count", "")
	if status != fiber.StatusOK || body["count"].(float64) != 3 {
		t.Fatalf("unexpected count response %d %v", status, body)
	}
}

func TestHandler_EnrollGeneratesSuffix(t *testing.T) {
	app, _ := setupHandlerApp(t, Options{})

	status, body := doRequest(t, app, fiber.MethodPost, "/api/v1/enrollments", `{"start_num":1,"count":2}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d (%v)", fiber.StatusCreated, status, body)
	}
	suffix, _ := body["suffix"].(string)
	if len(suffix) != 32 {
		t.Fatalf("expected a 32 character suffix, got %q", suffix)
	}

	status, _ = doRequest(t, app, fiber.MethodGet, "/api/v1/locks/1"+suffix, "")
	if status != fiber.StatusOK {
		t.Fatalf("expected enrolled lock, got %d", status)
	}
}

func TestHandler_EnrollRejectsHugeCount(t *testing.T) {
	app, _ := setupHandlerApp(t, Options{})
	status, _ := doRequest(t, app, fiber.MethodPost, "/api/v1/enrollments", `{"start_num":10,"count":100001,"suffix":""}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestHandler_ListLocksTruncates(t *testing.T) {
	app, svc := setupHandlerApp(t, Options{})
	for _, id := range []ledger.AccountID{"aa", "bb", "cc"} {
		ledger.SeedLock(svc.Ledger(), id, 1, 10)
	}

	status, body := doRequest(t, app, fiber.MethodGet, "/api/v1/locks?limit=2", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
	locks := body["locks"].([]any)
	if len(locks) != 2 || body["truncated"] != true {
		t.Fatalf("expected 2 locks and truncation, got %d %v", len(locks), body["truncated"])
	}

	_, body = doRequest(t, app, fiber.MethodGet, "/api/v1/locks", "")
	if len(body["locks"].([]any)) != 3 || body["truncated"] != false {
		t.Fatalf("expected all locks, got %v", body)
	}
}

func TestHandler_UnlockTimeAndParams(t *testing.T) {
	app, _ := setupHandlerApp(t, Options{})

	status, body := doRequest(t, app, fiber.MethodGet, "/api/v1/unlock-time?epochs=1&at=0", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
	if got := uint64(body["unlock_time"].(float64)); got != 2*EpochMs {
		t.Fatalf("expected %d got %d", 2*EpochMs, got)
	}

	_, body = doRequest(t, app, fiber.MethodGet, "/api/v1/params", "")
	if body["max_epochs"].(float64) != MaxEpochs || body["expiry_policy"] != "saturate" {
		t.Fatalf("unexpected params %v", body)
	}
}

func TestHandler_PutKeepsDistinctAccounts(t *testing.T) {
	configs := map[string]fiber.Config{
		"immutable": {Immutable: true},
		"zero-copy": {},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			app, svc := setupHandlerAppWithConfig(t, Options{}, cfg)

			accounts := []string{"alice", "bob00", "carol", "dave0"}
			for i, id := range accounts {
				body := fmt.Sprintf(`{"amount":"%d","created_at":0}`, (i+1)*100)
				if status, resp := doRequest(t, app, fiber.MethodPut, "/api/v1/locks/"+id, body); status != fiber.StatusOK {
					t.Fatalf("put %s: expected %d got %d (%v)", id, fiber.StatusOK, status, resp)
				}
			}

			for i, id := range accounts {
				status, body := doRequest(t, app, fiber.MethodGet, "/api/v1/locks/"+id, "")
				if status != fiber.StatusOK {
					t.Fatalf("get %s: expected %d got %d (%v)", id, fiber.StatusOK, status, body)
				}
				if want := fmt.Sprint((i + 1) * 100); body["amount"] != want {
					t.Fatalf("get %s: expected amount %s got %v", id, want, body["amount"])
				}
			}

			status, body := doRequest(t, app, fiber.MethodGet, "/api/v1/locks/count", "")
			if status != fiber.StatusOK || body["count"] != float64(len(accounts)) {
				t.Fatalf("expected count %d got %d %v", len(accounts), status, body)
			}

			var stored []string
			err := svc.Iterate(context.Background(), func(id ledger.AccountID, _ ledger.LockedBalance) error {
				stored = append(stored, string(id))
				return nil
			})
			if err != nil {
				t.Fatalf("iterate: %v", err)
			}
			sort.Strings(stored)
			if strings.Join(stored, ",") != strings.Join(accounts, ",") {
				t.Fatalf("expected stored ids %v got %v", accounts, stored)
			}
		})
	}
}
