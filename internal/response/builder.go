// Package response turns a matched rule into the bytes sent back to the
// client.
package response

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prasenjit/proxyboy/internal/logging"
	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Descriptor is a fully resolved response
type Descriptor struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Builder reads response files below a root directory
type Builder struct {
	root string
	mode string
	log  logrus.FieldLogger
}

// NewBuilder creates a builder serving files from root. A non-empty mode
// selects the "_mode" variant of every response file.
func NewBuilder(root, mode string, log logrus.FieldLogger) *Builder {
	if log == nil {
		log = logging.Nop()
	}
	return &Builder{root: filepath.Clean(root), mode: mode, log: log}
}

// Root returns the directory response files are read from
func (b *Builder) Root() string {
	return b.root
}

// Mode returns the active response mode
func (b *Builder) Mode() string {
	return b.mode
}

// Build reads the rule's response file and waits out its delay. Only the
// calling goroutine sleeps; a cancelled ctx ends the wait early.
func (b *Builder) Build(ctx context.Context, rule *models.Rule) (*Descriptor, error) {
	path, err := b.Resolve(rule.File)
	if err != nil {
		return nil, err
	}

	b.log.WithFields(logrus.Fields{
		"rule": rule.ID,
		"file": path,
	}).Debug("reading response file")

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, mockerr.E(mockerr.FileRead, "response.Build", rule.File, err)
	}

	contentType := rule.EffectiveContentType()
	if isJSON(contentType) && !gjson.ValidBytes(body) {
		b.log.WithFields(logrus.Fields{
			"rule": rule.ID,
			"file": path,
		}).Warn("response file is not valid JSON")
	}

	if err := wait(ctx, rule.DelayDuration()); err != nil {
		return nil, err
	}

	return &Descriptor{
		StatusCode:  rule.EffectiveStatus(),
		ContentType: contentType,
		Body:        body,
	}, nil
}

// Resolve maps a rule file onto a path inside the root, applying the mode
// suffix. Paths escaping the root are rejected.
func (b *Builder) Resolve(file string) (string, error) {
	name := WithMode(file, b.mode)
	path := filepath.Join(b.root, filepath.FromSlash(name))

	rel, err := filepath.Rel(b.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", mockerr.E(mockerr.FileRead, "response.Resolve", file,
			errors.Errorf("%s is outside the store directory", file))
	}
	return path, nil
}

// WithMode inserts "_mode" before the file extension: a/b.json becomes
// a/b_error.json for mode "error". An empty mode leaves file unchanged.
func WithMode(file, mode string) string {
	if mode == "" {
		return file
	}
	dir, base := "", file
	if i := strings.LastIndex(file, "/"); i >= 0 {
		dir, base = file[:i+1], file[i+1:]
	}
	ext := ""
	if i := strings.LastIndex(base, "."); i > 0 {
		base, ext = base[:i], base[i:]
	}
	return dir + base + "_" + mode + ext
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}
