// Package openapi describes the active mock rules as an OpenAPI 3 document.
package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prasenjit/proxyboy/internal/models"
	"gopkg.in/yaml.v3"
)

// Version of the generated documents
const Version = "3.0.3"

// WildcardMethods are the operations a "*" rule is documented under
var WildcardMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

// methods an OpenAPI path item can hold
var documentable = map[string]bool{
	"CONNECT": true, "DELETE": true, "GET": true, "HEAD": true, "OPTIONS": true,
	"PATCH": true, "POST": true, "PUT": true, "TRACE": true,
}

// Info describes the generated document
type Info struct {
	Title       string
	Version     string
	Description string
}

// Export builds a document with one operation per enabled rule. When several
// rules cover the same path and method the first one wins, as in routing.
func Export(rules []*models.Rule, info Info) *openapi3.T {
	if info.Title == "" {
		info.Title = "proxyboy mocks"
	}
	if info.Version == "" {
		info.Version = "1.0.0"
	}

	doc := &openapi3.T{
		OpenAPI: Version,
		Info: &openapi3.Info{
			Title:       info.Title,
			Version:     info.Version,
			Description: info.Description,
		},
		Paths: openapi3.NewPaths(),
	}

	usedIDs := make(map[string]int)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		p := normalizePath(rule.URL)

		methods := []string{strings.ToUpper(rule.Method)}
		if rule.Method == models.Wildcard {
			methods = WildcardMethods
		}

		for _, method := range methods {
			if !documentable[method] {
				continue
			}
			item := doc.Paths.Value(p)
			if item == nil {
				item = &openapi3.PathItem{}
				doc.Paths.Set(p, item)
			}
			if item.GetOperation(method) != nil {
				continue
			}
			item.SetOperation(method, buildOperation(rule, method, p, usedIDs))
		}
	}

	return doc
}

func buildOperation(rule *models.Rule, method, p string, usedIDs map[string]int) *openapi3.Operation {
	op := openapi3.NewOperation()

	op.OperationID = operationID(method, p, usedIDs)
	op.Summary = rule.Name
	if op.Summary == "" {
		op.Summary = method + " " + p
	}
	op.Description = fmt.Sprintf("Served from %s", rule.File)
	op.Extensions = map[string]interface{}{
		"x-proxyboy-rule-id": rule.ID,
		"x-proxyboy-file":    rule.File,
	}
	if rule.Delay > 0 {
		op.Extensions["x-proxyboy-delay-ms"] = rule.Delay
	}

	resp := openapi3.NewResponse().
		WithDescription(fmt.Sprintf("Contents of %s", rule.File)).
		WithContent(openapi3.Content{rule.EffectiveContentType(): openapi3.NewMediaType()})

	op.Responses = openapi3.NewResponsesWithCapacity(1)
	op.Responses.Set(strconv.Itoa(rule.EffectiveStatus()), &openapi3.ResponseRef{Value: resp})

	return op
}

// operationID derives a unique ID such as get_api_users
func operationID(method, p string, used map[string]int) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, r := range strings.ToLower(p) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	id := strings.TrimRight(b.String(), "_")

	used[id]++
	if n := used[id]; n > 1 {
		id = fmt.Sprintf("%s_%d", id, n)
	}
	return id
}

func normalizePath(url string) string {
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return url
}

// ToJSON renders doc as indented JSON
func ToJSON(doc *openapi3.T) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// ToYAML renders doc as block-style YAML
func ToYAML(doc *openapi3.T) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	// JSON is YAML; decode into a node tree so key order is kept
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	resetStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
