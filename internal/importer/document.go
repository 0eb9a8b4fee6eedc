package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/models"
)

// Document is the declarative configuration read by the import command
type Document struct {
	RouterList []Route `json:"router_list" validate:"required,dive"`
	StorePath  string  `json:"store_path,omitempty"`
	Mode       string  `json:"mode,omitempty"`
}

// Route is one declaration in the router list. Method may name several
// comma-separated methods.
type Route struct {
	Name        string `json:"name"`
	Enable      *bool  `json:"enable"`
	Method      string `json:"method" validate:"required"`
	URL         string `json:"url" validate:"required"`
	File        string `json:"file" validate:"required"`
	StatusCode  int    `json:"status_code"`
	Delay       int    `json:"delay"`
	ContentType string `json:"content_type"`
}

// Settings are the document fields the server reads at startup
type Settings struct {
	StorePath string
	Mode      string
}

var validate = validator.New()

// ReadDocument reads and parses the document at path
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mockerr.E(mockerr.ConfigRead, "importer.ReadDocument", "read "+path, err)
	}
	return ParseDocument(data)
}

// ParseDocument decodes and validates a configuration document
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, mockerr.E(mockerr.ConfigParse, "importer.ParseDocument", "malformed document", err)
	}

	if err := validate.Struct(&doc); err != nil {
		return nil, mockerr.E(mockerr.ConfigParse, "importer.ParseDocument", describeValidation(err), nil)
	}

	return &doc, nil
}

// ReadSettings returns store_path and mode from the document at path
func ReadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, mockerr.E(mockerr.ConfigRead, "importer.ReadSettings", "read "+path, err)
	}

	var doc struct {
		StorePath string `json:"store_path"`
		Mode      string `json:"mode"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Settings{}, mockerr.E(mockerr.ConfigParse, "importer.ReadSettings", "malformed document", err)
	}
	return Settings{StorePath: doc.StorePath, Mode: doc.Mode}, nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace looks like Document.RouterList[2].URL
		field := strings.TrimPrefix(fe.Namespace(), "Document.")
		msgs = append(msgs, fmt.Sprintf("%s is %s", field, fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// SplitMethods turns a method declaration into canonical method tokens.
// "*" is kept as the wildcard.
func SplitMethods(method string) ([]string, error) {
	if strings.TrimSpace(method) == models.Wildcard {
		return []string{models.Wildcard}, nil
	}

	parts := strings.Split(method, ",")
	methods := make([]string, 0, len(parts))
	for _, part := range parts {
		token := strings.ToUpper(strings.TrimSpace(part))
		if token == "" {
			return nil, fmt.Errorf("empty method in %q", method)
		}
		methods = append(methods, token)
	}
	return methods, nil
}

// Expand turns the document into canonical rules, one per method, in
// declaration order
func (d *Document) Expand() ([]*models.Rule, []string, error) {
	var rules []*models.Rule
	var warnings []string

	for i, route := range d.RouterList {
		methods, err := SplitMethods(route.Method)
		if err != nil {
			return nil, nil, mockerr.E(mockerr.ConfigParse, "importer.Expand",
				fmt.Sprintf("router_list[%d]", i), err)
		}

		enabled := true
		if route.Enable != nil {
			enabled = *route.Enable
		}

		status := route.StatusCode
		if !models.ValidStatus(status) {
			if status != 0 {
				warnings = append(warnings, fmt.Sprintf("router_list[%d]: status_code %d is not valid, using %d", i, status, models.DefaultStatusCode))
			}
			status = models.DefaultStatusCode
		}

		delay := route.Delay
		if delay < 0 {
			warnings = append(warnings, fmt.Sprintf("router_list[%d]: negative delay %d, using 0", i, delay))
			delay = 0
		}
		if delay > models.MaxDelay {
			warnings = append(warnings, fmt.Sprintf("router_list[%d]: delay %d exceeds %d, using %d", i, delay, models.MaxDelay, models.MaxDelay))
			delay = models.MaxDelay
		}

		contentType := route.ContentType
		if contentType == "" {
			contentType = models.DefaultContentType
		}

		for _, method := range methods {
			rules = append(rules, &models.Rule{
				Name:        route.Name,
				Enabled:     enabled,
				Method:      method,
				URL:         route.URL,
				File:        route.File,
				StatusCode:  status,
				Delay:       delay,
				ContentType: contentType,
			})
		}
	}

	return rules, warnings, nil
}
