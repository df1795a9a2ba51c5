package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestParseJSON(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"test"}`))

		var dest struct {
			Name string `json:"name"`
		}
		if err := ParseJSON(req, &dest); err != nil {
			t.Fatalf("ParseJSON failed: %v", err)
		}
		if dest.Name != "test" {
			t.Errorf("Expected name 'test', got %s", dest.Name)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{invalid`))

		var dest map[string]string
		if err := ParseJSON(req, &dest); err == nil {
			t.Error("Expected error for invalid JSON")
		}
	})
}

func TestParseJSONOrError(t *testing.T) {
	t.Run("writes 400 on bad JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`not json`))
		rr := httptest.NewRecorder()

		var dest map[string]string
		if ParseJSONOrError(rr, req, &dest) {
			t.Error("Expected false for invalid JSON")
		}
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})
}

func TestParsePathString(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/invitations/abc123", nil)
		req = mux.SetURLVars(req, map[string]string{"token": "abc123"})

		val, err := ParsePathString(req, "token")
		if err != nil {
			t.Fatalf("ParsePathString failed: %v", err)
		}
		if val != "abc123" {
			t.Errorf("Expected 'abc123', got %s", val)
		}
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/invitations/", nil)

		if _, err := ParsePathString(req, "token"); err == nil {
			t.Error("Expected error for missing path parameter")
		}
	})
}

func TestParseQueryInt(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?limit=50", nil)
		val, err := ParseQueryInt(req, "limit", 20)
		if err != nil {
			t.Fatalf("ParseQueryInt failed: %v", err)
		}
		if val != 50 {
			t.Errorf("Expected 50, got %d", val)
		}
	})

	t.Run("default", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		val, err := ParseQueryInt(req, "limit", 20)
		if err != nil {
			t.Fatalf("ParseQueryInt failed: %v", err)
		}
		if val != 20 {
			t.Errorf("Expected default 20, got %d", val)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?limit=abc", nil)
		if _, err := ParseQueryInt(req, "limit", 20); err == nil {
			t.Error("Expected error for invalid integer")
		}
	})
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest("GET", "/?active=true", nil)
	val, err := ParseQueryBool(req, "active", false)
	if err != nil {
		t.Fatalf("ParseQueryBool failed: %v", err)
	}
	if !val {
		t.Error("Expected true")
	}
}

func TestRequireNonEmpty(t *testing.T) {
	t.Run("non-empty passes", func(t *testing.T) {
		rr := httptest.NewRecorder()
		if !RequireNonEmpty(rr, "value", "name") {
			t.Error("Expected true for non-empty value")
		}
	})

	t.Run("empty writes 400", func(t *testing.T) {
		rr := httptest.NewRecorder()
		if RequireNonEmpty(rr, "", "name") {
			t.Error("Expected false for empty value")
		}
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})
}

func TestValidateAll(t *testing.T) {
	t.Run("all valid", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ok := ValidateAll(rr,
			func() (bool, string) { return true, "" },
			func() (bool, string) { return true, "" },
		)
		if !ok {
			t.Error("Expected true when all validators pass")
		}
	})

	t.Run("first failure wins", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ok := ValidateAll(rr,
			func() (bool, string) { return false, "first error" },
			func() (bool, string) { return false, "second error" },
		)
		if ok {
			t.Error("Expected false when a validator fails")
		}
		if !strings.Contains(rr.Body.String(), "first error") {
			t.Errorf("Expected first error in body, got %s", rr.Body.String())
		}
	})
}
