package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/prasenjit/proxyboy/internal/models"
)

const defaultMaxAuditRecords = 1000

// MemoryStorage implements Storage interface with in-memory storage
type MemoryStorage struct {
	mu       sync.RWMutex
	rules    []*models.Rule
	audit    []*models.AuditRecord
	maxAudit int
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		rules:    make([]*models.Rule, 0),
		audit:    make([]*models.AuditRecord, 0),
		maxAudit: defaultMaxAuditRecords,
	}
}

// ListEnabled retrieves enabled rules in store order
func (m *MemoryStorage) ListEnabled(ctx context.Context) ([]*models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneRules(m.rules, true), nil
}

// ListAll retrieves all rules in store order
func (m *MemoryStorage) ListAll(ctx context.Context) ([]*models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneRules(m.rules, false), nil
}

// ReplaceAll swaps the whole rule set. Readers see the old set or the new
// one, never a mix.
func (m *MemoryStorage) ReplaceAll(ctx context.Context, rules []*models.Rule) error {
	prepared, err := prepareRules(rules, 0)
	if err != nil {
		return err
	}
	if err := checkDuplicateIDs(prepared); err != nil {
		return err
	}

	m.mu.Lock()
	m.rules = prepared
	m.mu.Unlock()
	return nil
}

// Insert appends a rule after the existing ones
func (m *MemoryStorage) Insert(ctx context.Context, rule *models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := 0
	if n := len(m.rules); n > 0 {
		next = m.rules[n-1].Position + 1
	}

	prepared, err := prepareRules([]*models.Rule{rule}, next)
	if err != nil {
		return err
	}

	for _, existing := range m.rules {
		if existing.ID == prepared[0].ID {
			return fmt.Errorf("rule with ID %s already exists", existing.ID)
		}
	}

	m.rules = append(m.rules, prepared[0])
	return nil
}

// InsertAuditRecord keeps the most recent audit records in memory
func (m *MemoryStorage) InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.audit = append(m.audit, rec)
	if len(m.audit) > m.maxAudit {
		m.audit = m.audit[len(m.audit)-m.maxAudit:]
	}
	return nil
}

// AuditRecords returns the stored audit records, oldest first
func (m *MemoryStorage) AuditRecords() []*models.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.AuditRecord, len(m.audit))
	copy(result, m.audit)
	return result
}

// Close closes the storage (no-op for memory storage)
func (m *MemoryStorage) Close() error {
	return nil
}

func checkDuplicateIDs(rules []*models.Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, exists := seen[r.ID]; exists {
			return fmt.Errorf("rule with ID %s already exists", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
