// Package audit records every inbound mock request, matched or not.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prasenjit/proxyboy/internal/logging"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/prasenjit/proxyboy/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRecords = 1000
	defaultQueueSize  = 256
	writeTimeout      = 5 * time.Second
)

// Service keeps recent audit records in memory, streams them to
// subscribers and persists them through a background writer
type Service struct {
	mu          sync.RWMutex
	records     []*models.AuditRecord
	maxRecords  int
	subscribers map[string]chan *models.AuditRecord
	closed      bool

	store   storage.AuditStore
	queue   chan *models.AuditRecord
	done    chan struct{}
	dropped atomic.Int64
	log     logrus.FieldLogger
}

// Options configures a Service
type Options struct {
	MaxRecords int                // Records kept in memory
	QueueSize  int                // Pending store writes
	Store      storage.AuditStore // Optional persistent sink
	Log        logrus.FieldLogger
}

// NewService creates an audit service. When opts.Store is set a writer
// goroutine is started; call Close to drain it.
func NewService(opts Options) *Service {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = defaultMaxRecords
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}

	s := &Service{
		records:     make([]*models.AuditRecord, 0),
		maxRecords:  opts.MaxRecords,
		subscribers: make(map[string]chan *models.AuditRecord),
		store:       opts.Store,
		done:        make(chan struct{}),
		log:         opts.Log,
	}

	if s.store != nil {
		s.queue = make(chan *models.AuditRecord, opts.QueueSize)
		go s.writer()
	} else {
		close(s.done)
	}

	return s
}

// Record stores a snapshot of an inbound request. It never blocks: when the
// write queue is full the record is kept in memory only.
func (s *Service) Record(rec *models.AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	stored := clone(rec)

	s.log.WithFields(logrus.Fields{
		"id":     rec.ID,
		"method": rec.Method,
		"host":   rec.Host,
		"path":   rec.Path,
	}).Info("request received")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, stored)
	if len(s.records) > s.maxRecords {
		s.records = s.records[len(s.records)-s.maxRecords:]
	}

	if s.queue != nil && !s.closed {
		select {
		case s.queue <- clone(stored):
		default:
			s.dropped.Add(1)
			s.log.WithField("id", rec.ID).Warn("audit queue full, record not persisted")
		}
	}

	s.notifyLocked(stored)
}

// Complete fills in the outcome of a recorded request
func (s *Service) Complete(id, ruleID string, statusCode int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.ID != id {
			continue
		}
		// Replace rather than mutate so earlier snapshots stay untouched
		updated := clone(rec)
		updated.MatchedRuleID = ruleID
		updated.StatusCode = statusCode
		updated.Duration = duration.Nanoseconds()
		s.records[i] = updated
		s.notifyLocked(updated)
		return
	}
}

// notifyLocked fans rec out to subscribers without blocking. Callers hold mu.
func (s *Service) notifyLocked(rec *models.AuditRecord) {
	for _, ch := range s.subscribers {
		select {
		case ch <- rec:
		default:
			// Slow subscriber, skip
		}
	}
}

// List returns records matching the filter, newest first
func (s *Service) List(filter *models.AuditFilter) []*models.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.AuditRecord, 0)

	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if !Matches(filter, rec) {
			continue
		}

		result = append(result, rec)

		if filter != nil && filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}

	return result
}

// Get returns a single record by ID
func (s *Service) Get(id string) *models.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}

	return nil
}

// Clear removes all in-memory records. Persisted records are kept.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]*models.AuditRecord, 0)
}

// Subscribe creates a subscription for live records
func (s *Service) Subscribe() (string, chan *models.AuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan *models.AuditRecord, 100)
	s.subscribers[id] = ch

	return id, ch
}

// Unsubscribe removes a subscription and closes its channel
func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Stats returns audit statistics
func (s *Service) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := 0
	if s.queue != nil {
		pending = len(s.queue)
	}

	return map[string]interface{}{
		"totalRecords":      len(s.records),
		"maxRecords":        s.maxRecords,
		"activeSubscribers": len(s.subscribers),
		"pendingWrites":     pending,
		"droppedWrites":     s.dropped.Load(),
	}
}

// Close stops accepting store writes and waits for the queue to drain
func (s *Service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.queue != nil {
			close(s.queue)
		}
	}
	s.mu.Unlock()

	<-s.done
}

func (s *Service) writer() {
	defer close(s.done)

	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := s.store.InsertAuditRecord(ctx, rec); err != nil {
			s.log.WithError(err).WithField("id", rec.ID).Error("failed to persist audit record")
		}
		cancel()
	}
}

func clone(rec *models.AuditRecord) *models.AuditRecord {
	c := *rec
	return &c
}
