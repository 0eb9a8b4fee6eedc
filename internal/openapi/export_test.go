package openapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prasenjit/proxyboy/internal/models"
)

func testRules() []*models.Rule {
	return []*models.Rule{
		{ID: "r1", Name: "list users", Enabled: true, Method: "GET", URL: "/users", File: "/users.json", StatusCode: 200, ContentType: "application/json"},
		{ID: "r2", Enabled: true, Method: "POST", URL: "users", File: "/created.json", StatusCode: 201, ContentType: "application/json", Delay: 250},
		{ID: "r3", Enabled: true, Method: "GET", URL: "/users", File: "/shadowed.json", StatusCode: 500},
		{ID: "r4", Enabled: true, Method: "*", URL: "/health", File: "/health.txt", StatusCode: 200, ContentType: "text/plain"},
		{ID: "r5", Enabled: false, Method: "GET", URL: "/off", File: "/off.json"},
		{ID: "r6", Enabled: true, Method: "BREW", URL: "/coffee", File: "/pot.json"},
	}
}

func TestExport(t *testing.T) {
	doc := Export(testRules(), Info{Title: "Test mocks", Version: "2.0.0"})

	if doc.OpenAPI != "3.0.3" {
		t.Errorf("Expected OpenAPI 3.0.3, got %q", doc.OpenAPI)
	}
	if doc.Info.Title != "Test mocks" || doc.Info.Version != "2.0.0" {
		t.Errorf("Unexpected info %+v", doc.Info)
	}

	users := doc.Paths.Value("/users")
	if users == nil {
		t.Fatal("Expected /users path")
	}
	if users.Get == nil || users.Post == nil {
		t.Fatal("Expected GET and POST on /users")
	}

	// First rule wins for GET /users
	if users.Get.Summary != "list users" {
		t.Errorf("Expected summary 'list users', got %q", users.Get.Summary)
	}
	if users.Get.Extensions["x-proxyboy-rule-id"] != "r1" {
		t.Errorf("Expected rule r1 on GET /users, got %v", users.Get.Extensions["x-proxyboy-rule-id"])
	}
	if users.Get.Responses.Value("500") != nil {
		t.Error("Expected shadowed rule to be left out")
	}

	created := users.Post.Responses.Value("201")
	if created == nil || created.Value == nil {
		t.Fatal("Expected 201 response on POST /users")
	}
	if created.Value.Content.Get("application/json") == nil {
		t.Error("Expected application/json content on POST /users")
	}
	if users.Post.Extensions["x-proxyboy-delay-ms"] != 250 {
		t.Errorf("Expected delay extension 250, got %v", users.Post.Extensions["x-proxyboy-delay-ms"])
	}
}

func TestExport_WildcardAndSkipped(t *testing.T) {
	doc := Export(testRules(), Info{})

	health := doc.Paths.Value("/health")
	if health == nil {
		t.Fatal("Expected /health path")
	}
	for _, m := range WildcardMethods {
		op := health.GetOperation(m)
		if op == nil {
			t.Errorf("Expected %s on /health", m)
			continue
		}
		if op.Responses.Value("200").Value.Content.Get("text/plain") == nil {
			t.Errorf("Expected text/plain content on %s /health", m)
		}
	}

	if doc.Paths.Value("/off") != nil {
		t.Error("Expected disabled rule to be left out")
	}
	if doc.Paths.Value("/coffee") != nil {
		t.Error("Expected non-standard method to be left out")
	}
	if doc.Info.Title == "" || doc.Info.Version == "" {
		t.Error("Expected default title and version")
	}
}

func TestExport_Validates(t *testing.T) {
	doc := Export(testRules(), Info{})

	data, err := ToJSON(doc)
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	loader := openapi3.NewLoader()
	loaded, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("Failed to load exported document: %v", err)
	}
	if err := loaded.Validate(context.Background()); err != nil {
		t.Errorf("Exported document is not valid: %v", err)
	}
}

func TestOperationIDsAreUnique(t *testing.T) {
	rules := []*models.Rule{
		{Enabled: true, Method: "GET", URL: "/a-b", File: "/1.json"},
		{Enabled: true, Method: "GET", URL: "/a_b", File: "/2.json"},
	}
	doc := Export(rules, Info{})

	first := doc.Paths.Value("/a-b").Get.OperationID
	second := doc.Paths.Value("/a_b").Get.OperationID
	if first == second {
		t.Errorf("Expected unique operation IDs, both are %q", first)
	}
	if first != "get_a_b" {
		t.Errorf("Expected 'get_a_b', got %q", first)
	}
}

func TestToJSON(t *testing.T) {
	data, err := ToJSON(Export(testRules(), Info{}))
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if raw["openapi"] != "3.0.3" {
		t.Errorf("Expected openapi field 3.0.3, got %v", raw["openapi"])
	}
}

func TestToYAML(t *testing.T) {
	data, err := ToYAML(Export(testRules(), Info{Title: "Test mocks"}))
	if err != nil {
		t.Fatalf("ToYAML failed: %v", err)
	}

	out := string(data)
	if strings.Contains(out, `{"`) {
		t.Errorf("Expected block style YAML, got:\n%s", out)
	}
	if !strings.Contains(out, "\n  title: Test mocks\n") {
		t.Errorf("Expected title in YAML, got:\n%s", out)
	}
	if !strings.Contains(out, `"201":`) {
		t.Errorf("Expected quoted status key, got:\n%s", out)
	}

	loader := openapi3.NewLoader()
	if _, err := loader.LoadFromData(data); err != nil {
		t.Errorf("Failed to load YAML document: %v", err)
	}
}
