package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prasenjit/proxyboy/internal/models"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	rulesFileName = "rules.json"
	auditFileName = "audit.log"
)

// FileStorage implements Storage interface with file-based persistence.
// Rules live in one JSON document that is replaced by rename, so another
// process (the import command) can swap it while the server is running.
type FileStorage struct {
	mu       sync.RWMutex
	basePath string
	memory   *MemoryStorage
	modTime  time.Time
	size     int64
	audit    *lumberjack.Logger
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", basePath, err)
	}

	fs := &FileStorage{
		basePath: basePath,
		memory:   NewMemoryStorage(),
		audit: &lumberjack.Logger{
			Filename:   filepath.Join(basePath, auditFileName),
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		},
	}

	// Load existing data
	fs.mu.Lock()
	err := fs.reloadLocked()
	fs.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return fs, nil
}

func (f *FileStorage) rulesPath() string {
	return filepath.Join(f.basePath, rulesFileName)
}

// refresh reloads the rules document if it changed on disk
func (f *FileStorage) refresh() error {
	info, err := os.Stat(f.rulesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "stat rules file")
	}

	f.mu.RLock()
	unchanged := info.ModTime().Equal(f.modTime) && info.Size() == f.size
	f.mu.RUnlock()
	if unchanged {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloadLocked()
}

// reloadLocked reads the rules document into memory. Caller holds f.mu.
func (f *FileStorage) reloadLocked() error {
	path := f.rulesPath()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "stat rules file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	var rules []*models.Rule
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rules); err != nil {
			return errors.Wrapf(err, "decode %s", path)
		}
	}

	f.memory.mu.Lock()
	f.memory.rules = rules
	f.memory.mu.Unlock()

	f.modTime = info.ModTime()
	f.size = info.Size()
	return nil
}

// writeRulesLocked writes rules to a temp file and renames it over the
// rules document. Caller holds f.mu.
func (f *FileStorage) writeRulesLocked(rules []*models.Rule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode rules")
	}

	tmp, err := os.CreateTemp(f.basePath, "rules-*.json.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp rules file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp rules file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "sync temp rules file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp rules file")
	}
	if err := os.Rename(tmpName, f.rulesPath()); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace rules file")
	}

	if info, err := os.Stat(f.rulesPath()); err == nil {
		f.modTime = info.ModTime()
		f.size = info.Size()
	}
	return nil
}

// ListEnabled retrieves enabled rules, picking up external changes first
func (f *FileStorage) ListEnabled(ctx context.Context) ([]*models.Rule, error) {
	if err := f.refresh(); err != nil {
		return nil, err
	}
	return f.memory.ListEnabled(ctx)
}

// ListAll retrieves all rules
func (f *FileStorage) ListAll(ctx context.Context) ([]*models.Rule, error) {
	if err := f.refresh(); err != nil {
		return nil, err
	}
	return f.memory.ListAll(ctx)
}

// ReplaceAll persists the new rule set and swaps it in. If writing fails
// the file and the in-memory set are left untouched.
func (f *FileStorage) ReplaceAll(ctx context.Context, rules []*models.Rule) error {
	prepared, err := prepareRules(rules, 0)
	if err != nil {
		return err
	}
	if err := checkDuplicateIDs(prepared); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writeRulesLocked(prepared); err != nil {
		return err
	}

	f.memory.mu.Lock()
	f.memory.rules = prepared
	f.memory.mu.Unlock()
	return nil
}

// Insert appends a rule and rewrites the rules document
func (f *FileStorage) Insert(ctx context.Context, rule *models.Rule) error {
	if err := f.refresh(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current := cloneRules(f.memory.rules, false)
	next := 0
	if n := len(current); n > 0 {
		next = current[n-1].Position + 1
	}

	prepared, err := prepareRules([]*models.Rule{rule}, next)
	if err != nil {
		return err
	}
	updated := append(current, prepared[0])
	if err := checkDuplicateIDs(updated); err != nil {
		return err
	}

	if err := f.writeRulesLocked(updated); err != nil {
		return err
	}

	f.memory.mu.Lock()
	f.memory.rules = updated
	f.memory.mu.Unlock()
	return nil
}

// InsertAuditRecord appends the record as one JSON line to the rotated
// audit log
func (f *FileStorage) InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode audit record")
	}
	data = append(data, '\n')

	if _, err := f.audit.Write(data); err != nil {
		return errors.Wrap(err, "write audit record")
	}
	return nil
}

// Close closes the storage
func (f *FileStorage) Close() error {
	return f.audit.Close()
}
