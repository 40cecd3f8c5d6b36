package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var errNotFound = errors.New("not found")

type memRegistry struct {
	mu    sync.Mutex
	docs  map[string]*models.Document
	order []string
	// getErr fails GetDocumentByID for the given ids.
	getErr map[string]error
}

func newMemRegistry(docs ...models.Document) *memRegistry {
	r := &memRegistry{docs: map[string]*models.Document{}, getErr: map[string]error{}}
	for i := range docs {
		d := docs[i]
		r.docs[d.ID] = &d
		r.order = append(r.order, d.ID)
	}
	return r
}

func (r *memRegistry) ListDocuments(_ context.Context, f models.DocumentFilter) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Document
	for _, id := range r.order {
		d := r.docs[id]
		if d.SubjectSlug != f.SubjectSlug {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, d.Status) {
			continue
		}
		if f.IDs != nil && !slices.Contains(f.IDs, d.ID) {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (r *memRegistry) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.getErr[id]; err != nil {
		return nil, err
	}
	d, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	cp := *d
	return &cp, nil
}

func (r *memRegistry) UpdateDocumentStatus(_ context.Context, id string, status models.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return errNotFound
	}
	d.Status = status
	return nil
}

func (r *memRegistry) status(id string) models.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id].Status
}

type progress struct{ docsDone, vectors int }

type memJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.IngestionJob
	progress map[string][]progress
	getErr   error
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]*models.IngestionJob{}, progress: map[string][]progress{}}
}

func (s *memJobStore) CreateJob(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("duplicate job %s", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memJobStore) GetJob(_ context.Context, id string) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *memJobStore) ListJobsBySubject(_ context.Context, subject string) ([]models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IngestionJob
	for _, j := range s.jobs {
		if j.SubjectSlug == subject {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (s *memJobStore) TransitionJob(_ context.Context, id string, from []models.JobStatus, to models.JobStatus, errMsg *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || !slices.Contains(from, j.Status) {
		return false, nil
	}
	if !models.CanTransition(j.Status, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", j.Status, to)
	}
	j.Status = to
	if errMsg != nil {
		msg := *errMsg
		j.Error = &msg
	}
	return true, nil
}

func (s *memJobStore) UpdateJobProgress(_ context.Context, id string, docsDone, vectors int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return errNotFound
	}
	if docsDone > j.DocsTotal {
		return fmt.Errorf("docs_done %d exceeds docs_total %d", docsDone, j.DocsTotal)
	}
	j.DocsDone, j.Vectors = docsDone, vectors
	s.progress[id] = append(s.progress[id], progress{docsDone, vectors})
	return nil
}

func (s *memJobStore) SetJobLogsURL(_ context.Context, id string, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.LogsURL = &url
	}
	return nil
}

func (s *memJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *memJobStore) history(id string) []progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.progress[id])
}

type fakeObjects struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[string]error
	// onGet runs before the lookup, outside the lock.
	onGet func(key string)
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{files: map[string][]byte{}, fail: map[string]error{}}
}

func (o *fakeObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	if o.onGet != nil {
		o.onGet(key)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[key]; err != nil {
		return nil, err
	}
	data, ok := o.files[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such object %s/%s", bucket, key)
	}
	return data, nil
}

type passthroughExtractor struct{}

func (passthroughExtractor) ExtractText(_ context.Context, data []byte, _ string) string {
	return string(data)
}

type fakeVectorStore struct {
	mu        sync.Mutex
	initErr   error
	failDocs  map[string]error
	panicDocs map[string]bool
	chunks    []models.Chunk
	calls     []string
	initCalls int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{failDocs: map[string]error{}, panicDocs: map[string]bool{}}
}

func (v *fakeVectorStore) InitStore(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initCalls++
	return v.initErr
}

func (v *fakeVectorStore) UpsertChunks(_ context.Context, chunks []models.Chunk, _ int) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	docID := chunks[0].DocID
	if v.panicDocs[docID] {
		panic("vector store exploded")
	}
	v.calls = append(v.calls, "upsert:"+docID)
	if err := v.failDocs[docID]; err != nil {
		return 0, err
	}
	v.chunks = append(v.chunks, chunks...)
	return len(chunks), nil
}

func (v *fakeVectorStore) Search(context.Context, models.SearchQuery) ([]models.SearchHit, error) {
	return nil, nil
}

func (v *fakeVectorStore) DeleteByDoc(_ context.Context, docID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, "delete:"+docID)
	return nil
}

func (v *fakeVectorStore) Count(context.Context, string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return int64(len(v.chunks)), nil
}

func (v *fakeVectorStore) snapshot() ([]models.Chunk, []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.chunks), slices.Clone(v.calls)
}
