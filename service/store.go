package service

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mnansary/DocSignerNML/config"
	"github.com/mnansary/DocSignerNML/model"
)

// VerificationStore is an in-memory store for verification runs.
// In production, this should be replaced with a database
type VerificationStore struct {
	verifications map[string]*model.Verification
	mu            sync.RWMutex
	maxEntries    int // Maximum runs to keep, 0 = unlimited
}

var (
	globalStore *VerificationStore
	storeOnce   sync.Once
)

// InitVerificationStore initializes the global store with configuration
func InitVerificationStore(cfg *config.StoreConfig) {
	storeOnce.Do(func() {
		maxEntries := cfg.MaxVerifications
		if maxEntries < 0 {
			maxEntries = 0
		}
		globalStore = &VerificationStore{
			verifications: make(map[string]*model.Verification),
			maxEntries:    maxEntries,
		}
		slog.Info("verification store initialized", "max_verifications", maxEntries)
	})
}

// GetVerificationStore returns the global verification store,
// initializing it with default settings if InitVerificationStore
// never ran. Both paths share the same sync.Once so concurrent first
// callers always see a single instance.
func GetVerificationStore() *VerificationStore {
	storeOnce.Do(func() {
		globalStore = &VerificationStore{
			verifications: make(map[string]*model.Verification),
			maxEntries:    100,
		}
	})
	return globalStore
}

func (s *VerificationStore) Save(verification *model.Verification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	verification.UpdatedAt = time.Now()
	s.verifications[verification.ID] = verification

	s.cleanupIfNeeded()
}

func (s *VerificationStore) Get(id string) *model.Verification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifications[id]
}

func (s *VerificationStore) GetByTenant(tenant string) []*model.Verification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Verification
	for _, v := range s.verifications {
		if v.Tenant == tenant {
			result = append(result, v)
		}
	}
	return result
}

func (s *VerificationStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verifications, id)
}

func (s *VerificationStore) UpdateStatus(id, status string, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.verifications[id]; ok {
		v.Status = status
		v.ErrorMsg = errMsg
		v.UpdatedAt = time.Now()
	}
}

// UpdateReport stores the final report and marks the run completed.
func (s *VerificationStore) UpdateReport(id string, report *model.VerificationReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.verifications[id]; ok {
		v.Report = report
		v.Status = model.StatusCompleted
		v.UpdatedAt = time.Now()
	}
}

// cleanupIfNeeded removes oldest runs if the store exceeds maxEntries
// Must be called with lock held
func (s *VerificationStore) cleanupIfNeeded() {
	if s.maxEntries <= 0 {
		return // Unlimited
	}

	if len(s.verifications) <= s.maxEntries {
		return
	}

	verifications := make([]*model.Verification, 0, len(s.verifications))
	for _, v := range s.verifications {
		verifications = append(verifications, v)
	}
	sort.Slice(verifications, func(i, j int) bool {
		return verifications[i].CreatedAt.Before(verifications[j].CreatedAt)
	})

	removeCount := len(verifications) - s.maxEntries
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old verification",
			"verification_id", verifications[i].ID,
			"created_at", verifications[i].CreatedAt,
		)
		delete(s.verifications, verifications[i].ID)
	}
}

// Count returns the number of verification runs in the store
func (s *VerificationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.verifications)
}
