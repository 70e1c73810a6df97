package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

func bindJSON(t *testing.T, body string, dst interface{}) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Setup()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBindReportsFieldsByJSONTag(t *testing.T) {
	var req model.PhaseRequest
	fields := bindJSON(t, `{}`, &req)
	if fields == nil {
		t.Fatal("missing direction must fail validation")
	}
	if _, ok := fields["direction"]; !ok {
		t.Fatalf("field errors = %v, want key %q", fields, "direction")
	}
}

func TestBindAcceptsExplicitFalse(t *testing.T) {
	// An explicit false is a retraction, not a missing field. It must survive
	// binding so the engine can act on it.
	var req model.RulesRequest
	fields := bindJSON(t, `{"accepted_rules": false}`, &req)
	if fields != nil {
		t.Fatalf("explicit false rejected at binding: %v", fields)
	}
	if req.AcceptedRules == nil || *req.AcceptedRules {
		t.Fatalf("accepted_rules = %v, want pointer to false", req.AcceptedRules)
	}
}

func TestBindRejectsAbsentAcknowledgement(t *testing.T) {
	var req model.RulesRequest
	fields := bindJSON(t, `{}`, &req)
	if fields == nil {
		t.Fatal("absent accepted_rules must fail validation")
	}
	if _, ok := fields["accepted_rules"]; !ok {
		t.Fatalf("field errors = %v, want key %q", fields, "accepted_rules")
	}
}

func TestBindWrapsMalformedJSON(t *testing.T) {
	var req model.RulesRequest
	fields := bindJSON(t, `{"accepted_rules":`, &req)
	if fields == nil {
		t.Fatal("malformed body must fail binding")
	}
	if _, ok := fields["detail"]; !ok {
		t.Fatalf("field errors = %v, want key %q", fields, "detail")
	}
}
