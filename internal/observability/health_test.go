package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth_returnsOK(t *testing.T) {
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	rec := httptest.NewRecorder()
	HandleHealth().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "1.2.3" || resp.Commit != "abc1234" {
		t.Errorf("response = %+v", resp)
	}
}

func serveReady(t *testing.T, checks ReadinessChecks) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleReady(checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/ready", nil))
	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return rec.Code, resp
}

func TestHandleReady_definitionsOnly(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{DefinitionsLoaded: func() bool { return true }})
	if code != http.StatusOK || resp.Status != "ready" {
		t.Fatalf("got %d %q, want 200 ready", code, resp.Status)
	}
	if len(resp.Checks) != 1 {
		t.Errorf("checks = %v, want only definitions", resp.Checks)
	}
}

func TestHandleReady_definitionsNotLoaded(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{DefinitionsLoaded: func() bool { return false }})
	if code != http.StatusServiceUnavailable || resp.Status != "not_ready" {
		t.Fatalf("got %d %q, want 503 not_ready", code, resp.Status)
	}
	if resp.Checks["definitions"].Error != "no definitions loaded" {
		t.Errorf("definitions check = %+v", resp.Checks["definitions"])
	}
}

func TestHandleReady_nilDefinitionsFuncIsNotReady(t *testing.T) {
	code, _ := serveReady(t, ReadinessChecks{})
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestHandleReady_optionalChecks(t *testing.T) {
	healthy := HealthCheckFunc(func(context.Context) error { return nil })
	down := HealthCheckFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		checks   ReadinessChecks
		wantCode int
		failing  []string
	}{
		{
			name: "all healthy",
			checks: ReadinessChecks{
				DefinitionsLoaded: func() bool { return true },
				OpenAPILoaded:     func() bool { return true },
				Postgres:          healthy,
				IdempotencyStore:  healthy,
			},
			wantCode: http.StatusOK,
		},
		{
			name: "postgres down",
			checks: ReadinessChecks{
				DefinitionsLoaded: func() bool { return true },
				Postgres:          down,
			},
			wantCode: http.StatusServiceUnavailable,
			failing:  []string{"postgres"},
		},
		{
			name: "multiple failures",
			checks: ReadinessChecks{
				DefinitionsLoaded: func() bool { return true },
				OpenAPILoaded:     func() bool { return false },
				IdempotencyStore:  down,
			},
			wantCode: http.StatusServiceUnavailable,
			failing:  []string{"idempotency_store", "openapi_index"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := serveReady(t, tt.checks)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
			got := FailingChecks(resp.Checks)
			if len(got) != len(tt.failing) {
				t.Fatalf("failing = %v, want %v", got, tt.failing)
			}
			for i := range got {
				if got[i] != tt.failing[i] {
					t.Errorf("failing = %v, want %v", got, tt.failing)
				}
			}
		})
	}
}

func TestHandleReady_checkSeesTimeout(t *testing.T) {
	var hadDeadline bool
	checker := HealthCheckFunc(func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	})
	serveReady(t, ReadinessChecks{DefinitionsLoaded: func() bool { return true }, Postgres: checker})
	if !hadDeadline {
		t.Error("health checks should run with a deadline")
	}
}
