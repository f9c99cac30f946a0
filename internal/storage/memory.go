package storage

import (
	"context"
	"sync"
	"time"

	"github.com/medireport/platform/internal/report"
	"github.com/medireport/platform/internal/shared/errors"
)

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu            sync.RWMutex
	patients      map[string]*Patient
	testResults   map[int64]*TestResult
	order         []int64
	nextPatientID int64
	nextResultID  int64
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:      make(map[string]*Patient),
		testResults:   make(map[int64]*TestResult),
		nextPatientID: 1,
		nextResultID:  1,
		now:           time.Now,
	}
}

func (s *MemoryStore) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[patientID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CreatePatient(ctx context.Context, np NewPatient) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.patients[np.PatientID]; exists {
		return nil, errors.Conflict("patient with this patientId already exists")
	}

	p := &Patient{
		ID:        s.nextPatientID,
		PatientID: np.PatientID,
		Name:      np.Name,
		Age:       np.Age,
		Gender:    np.Gender,
		CreatedAt: s.now().UTC(),
	}
	s.nextPatientID++
	s.patients[p.PatientID] = p

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CreateTestResult(ctx context.Context, nt NewTestResult) (*TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &TestResult{
		ID:         s.nextResultID,
		PatientID:  nt.PatientID,
		TestType:   nt.TestType,
		Parameters: nt.Parameters.Clone(),
		CreatedAt:  s.now().UTC(),
	}
	s.nextResultID++
	s.testResults[t.ID] = t
	s.order = append(s.order, t.ID)

	return copyTestResult(t), nil
}

func (s *MemoryStore) GetTestResults(ctx context.Context, patientID string) ([]TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []TestResult{}
	for _, id := range s.order {
		t := s.testResults[id]
		if t.PatientID == patientID {
			results = append(results, *copyTestResult(t))
		}
	}
	return results, nil
}

func (s *MemoryStore) GetTestResult(ctx context.Context, id int64) (*TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.testResults[id]
	if !ok {
		return nil, nil
	}
	return copyTestResult(t), nil
}

func (s *MemoryStore) UpdateTestResultWithReport(ctx context.Context, id int64, r *report.StructuredReport) (*TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.testResults[id]
	if !ok {
		return nil, nil
	}
	t.AIReport = r.Clone()
	return copyTestResult(t), nil
}

func (s *MemoryStore) Health(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func copyTestResult(t *TestResult) *TestResult {
	cp := *t
	cp.Parameters = t.Parameters.Clone()
	cp.AIReport = t.AIReport.Clone()
	return &cp
}

var _ Store = (*MemoryStore)(nil)
