// Package importer turns a declarative configuration document into rules
// and loads them into a rule store in one atomic replacement.
package importer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prasenjit/proxyboy/internal/logging"
	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/prasenjit/proxyboy/internal/storage"
	"github.com/sirupsen/logrus"
)

// ProgressFunc is called once per imported rule after the import committed
type ProgressFunc func(rule *models.Rule)

// Result describes a completed import
type Result struct {
	Rules    []*models.Rule
	Settings Settings
	Warnings []string
}

// Importer loads configuration documents into a rule store
type Importer struct {
	store storage.RuleStore
	log   logrus.FieldLogger
}

// New creates an importer writing to store
func New(store storage.RuleStore, log logrus.FieldLogger) *Importer {
	if log == nil {
		log = logging.Nop()
	}
	return &Importer{store: store, log: log}
}

// ImportFile reads the document at path and imports it
func (i *Importer) ImportFile(ctx context.Context, path string, progress ProgressFunc) (*Result, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		i.log.WithError(err).WithField("file", path).Error("import failed")
		return nil, err
	}
	return i.Import(ctx, doc, progress)
}

// ImportBytes parses data as a document and imports it
func (i *Importer) ImportBytes(ctx context.Context, data []byte, progress ProgressFunc) (*Result, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		i.log.WithError(err).Error("import failed")
		return nil, err
	}
	return i.Import(ctx, doc, progress)
}

// Import expands doc and replaces the store contents with the result. On
// any failure the store is left as it was.
func (i *Importer) Import(ctx context.Context, doc *Document, progress ProgressFunc) (*Result, error) {
	rules, warnings, err := doc.Expand()
	if err != nil {
		i.log.WithError(err).Error("import failed")
		return nil, err
	}
	for _, w := range warnings {
		i.log.Warn(w)
	}

	if err := i.store.ReplaceAll(ctx, rules); err != nil {
		err = mockerr.E(mockerr.ImportFailure, "importer.Import", "replace rules",
			errors.Wrapf(err, "store rejected %d rules", len(rules)))
		i.log.WithError(err).Error("import failed")
		return nil, err
	}

	for _, r := range rules {
		i.log.WithFields(logrus.Fields{
			"method": r.Method,
			"url":    r.URL,
			"file":   r.File,
		}).Debug("imported mock")
		if progress != nil {
			progress(r)
		}
	}
	i.log.WithField("rules", len(rules)).Info("imported router configurations")

	return &Result{
		Rules:    rules,
		Settings: Settings{StorePath: doc.StorePath, Mode: doc.Mode},
		Warnings: warnings,
	}, nil
}
