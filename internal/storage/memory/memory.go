// Package memory provides an in-process implementation of storage.Storage.
//
// It exists for unit tests and ephemeral usage: all state lives in maps
// guarded by one mutex, and RunInTransaction gets atomicity by snapshotting
// state before the callback and restoring it on error or panic.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// Verify interface satisfaction at compile time
var (
	_ storage.Storage     = (*Store)(nil)
	_ storage.Transaction = (*tx)(nil)
)

// Store is an in-memory storage backend.
type Store struct {
	mu          sync.Mutex
	documents   map[string]*types.Document
	edges       map[string]*types.DependencyEdge // key fromID + "\x00" + toFamilyID
	transitions map[string][]*types.TransitionRecord
	tasks       map[string]*types.WorkflowTask
	meta        map[string]string
	nextRecID   int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		documents:   make(map[string]*types.Document),
		edges:       make(map[string]*types.DependencyEdge),
		transitions: make(map[string][]*types.TransitionRecord),
		tasks:       make(map[string]*types.WorkflowTask),
		meta:        make(map[string]string),
	}
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func edgeKey(fromID, toFamilyID string) string {
	return fromID + "\x00" + toFamilyID
}

// snapshot deep-copies all state for transaction rollback.
func (s *Store) snapshot() *Store {
	snap := New()
	snap.nextRecID = s.nextRecID
	for k, v := range s.documents {
		c := *v
		snap.documents[k] = &c
	}
	for k, v := range s.edges {
		c := *v
		snap.edges[k] = &c
	}
	for k, v := range s.transitions {
		recs := make([]*types.TransitionRecord, len(v))
		for i, r := range v {
			c := *r
			recs[i] = &c
		}
		snap.transitions[k] = recs
	}
	for k, v := range s.tasks {
		c := *v
		snap.tasks[k] = &c
	}
	for k, v := range s.meta {
		snap.meta[k] = v
	}
	return snap
}

func (s *Store) restore(snap *Store) {
	s.documents = snap.documents
	s.edges = snap.edges
	s.transitions = snap.transitions
	s.tasks = snap.tasks
	s.meta = snap.meta
	s.nextRecID = snap.nextRecID
}

// RunInTransaction executes fn atomically under the store lock. An error
// or panic restores the pre-transaction snapshot.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	done := false
	defer func() {
		if !done {
			s.restore(snap)
		}
	}()

	if err := fn(&tx{s: s}); err != nil {
		return err
	}
	done = true
	return nil
}

// ---- Storage (read side; each method takes the lock) ----

func (s *Store) CreateDocument(ctx context.Context, doc *types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDocument(doc)
}

func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getDocument(id)
}

func (s *Store) GetFamily(ctx context.Context, familyID string) ([]*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getFamily(familyID), nil
}

func (s *Store) ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listDocuments(filter), nil
}

func (s *Store) ListEdges(ctx context.Context, activeOnly bool) ([]*types.DependencyEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEdges(activeOnly), nil
}

func (s *Store) EdgesFrom(ctx context.Context, docID string) ([]*types.DependencyEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgesFrom(docID), nil
}

func (s *Store) EdgesToFamily(ctx context.Context, familyID string) ([]*types.DependencyEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgesToFamily(familyID), nil
}

func (s *Store) GetTransitions(ctx context.Context, docID string) ([]*types.TransitionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getTransitions(docID), nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*types.WorkflowTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getTask(id)
}

func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.WorkflowTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listTasks(filter), nil
}

func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMeta(key)
}

// ---- tx: same operations without locking (lock held by RunInTransaction) ----

type tx struct{ s *Store }

func (t *tx) CreateDocument(ctx context.Context, doc *types.Document) error {
	return t.s.createDocument(doc)
}

func (t *tx) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return t.s.getDocument(id)
}

func (t *tx) GetFamily(ctx context.Context, familyID string) ([]*types.Document, error) {
	return t.s.getFamily(familyID), nil
}

func (t *tx) UpdateDocumentStatus(ctx context.Context, id string, from, to types.DocumentStatus, updates map[string]interface{}) error {
	return t.s.updateDocumentStatus(id, from, to, updates)
}

func (t *tx) UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error {
	return t.s.updateDocument(id, updates)
}

func (t *tx) AddEdge(ctx context.Context, edge *types.DependencyEdge) error {
	return t.s.addEdge(edge)
}

func (t *tx) DeactivateEdge(ctx context.Context, fromID, toFamilyID string) error {
	return t.s.deactivateEdge(fromID, toFamilyID)
}

func (t *tx) ListEdges(ctx context.Context, activeOnly bool) ([]*types.DependencyEdge, error) {
	return t.s.listEdges(activeOnly), nil
}

func (t *tx) EdgesFrom(ctx context.Context, docID string) ([]*types.DependencyEdge, error) {
	return t.s.edgesFrom(docID), nil
}

func (t *tx) EdgesToFamily(ctx context.Context, familyID string) ([]*types.DependencyEdge, error) {
	return t.s.edgesToFamily(familyID), nil
}

func (t *tx) AppendTransition(ctx context.Context, rec *types.TransitionRecord) error {
	return t.s.appendTransition(rec)
}

func (t *tx) GetTransitions(ctx context.Context, docID string) ([]*types.TransitionRecord, error) {
	return t.s.getTransitions(docID), nil
}

func (t *tx) CreateTask(ctx context.Context, task *types.WorkflowTask) error {
	return t.s.createTask(task)
}

func (t *tx) CloseTasks(ctx context.Context, docID string, taskType types.TaskType) error {
	return t.s.closeTasks(docID, taskType)
}

func (t *tx) EscalateTask(ctx context.Context, id string) error {
	return t.s.escalateTask(id)
}

func (t *tx) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.WorkflowTask, error) {
	return t.s.listTasks(filter), nil
}

func (t *tx) SetMeta(ctx context.Context, key, value string) error {
	t.s.meta[key] = value
	return nil
}

func (t *tx) GetMeta(ctx context.Context, key string) (string, error) {
	return t.s.getMeta(key)
}

// ---- internal operations (caller holds the lock) ----

func (s *Store) createDocument(doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if doc.ID == "" {
		doc.ID = types.DocumentID(doc.FamilyID, doc.Version)
	}
	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("document %s: %w", doc.ID, storage.ErrDuplicate)
	}
	if doc.Status == types.StatusEffective {
		if other := s.effectiveMember(doc.FamilyID, doc.ID); other != "" {
			return fmt.Errorf("document %s: family already has a current version (%s): %w",
				doc.ID, other, storage.ErrDuplicate)
		}
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	c := *doc
	s.documents[doc.ID] = &c
	return nil
}

func (s *Store) getDocument(id string) (*types.Document, error) {
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	c := *doc
	return &c, nil
}

func (s *Store) getFamily(familyID string) []*types.Document {
	var docs []*types.Document
	for _, d := range s.documents {
		if d.FamilyID == familyID {
			c := *d
			docs = append(docs, &c)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Version.Less(docs[j].Version)
	})
	return docs
}

func (s *Store) listDocuments(filter types.DocumentFilter) []*types.Document {
	var docs []*types.Document
	for _, d := range s.documents {
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.FamilyID != "" && d.FamilyID != filter.FamilyID {
			continue
		}
		if filter.Author != "" && d.Author != filter.Author {
			continue
		}
		if filter.TitleContains != "" && !strings.Contains(d.Title, filter.TitleContains) {
			continue
		}
		if filter.EffectiveBefore != nil &&
			(d.EffectiveDate == nil || d.EffectiveDate.After(*filter.EffectiveBefore)) {
			continue
		}
		if filter.ObsoleteBefore != nil &&
			(d.ObsolescenceDate == nil || d.ObsolescenceDate.After(*filter.ObsoleteBefore)) {
			continue
		}
		if filter.ReviewDueBefore != nil &&
			(d.ReviewDueDate == nil || d.ReviewDueDate.After(*filter.ReviewDueBefore)) {
			continue
		}
		c := *d
		docs = append(docs, &c)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].FamilyID != docs[j].FamilyID {
			return docs[i].FamilyID < docs[j].FamilyID
		}
		return docs[i].Version.Less(docs[j].Version)
	})
	if filter.Limit > 0 && len(docs) > filter.Limit {
		docs = docs[:filter.Limit]
	}
	return docs
}

func (s *Store) updateDocumentStatus(id string, from, to types.DocumentStatus, updates map[string]interface{}) error {
	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	if doc.Status != from {
		return fmt.Errorf("document %s no longer in status %s: %w", id, from, storage.ErrConflict)
	}
	if to == types.StatusEffective {
		// Same invariant the sqlite single-current index enforces.
		if other := s.effectiveMember(doc.FamilyID, id); other != "" {
			return fmt.Errorf("document %s: family already has a current version (%s): %w",
				id, other, storage.ErrConflict)
		}
	}
	doc.Status = to
	doc.UpdatedAt = time.Now()
	return applyUpdates(doc, updates)
}

// effectiveMember returns the ID of the family member currently in the
// effective status, excluding the given document, or "".
func (s *Store) effectiveMember(familyID, excludeID string) string {
	for id, d := range s.documents {
		if id != excludeID && d.FamilyID == familyID && d.Status == types.StatusEffective {
			return id
		}
	}
	return ""
}

func (s *Store) updateDocument(id string, updates map[string]interface{}) error {
	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	doc.UpdatedAt = time.Now()
	return applyUpdates(doc, updates)
}

func applyUpdates(doc *types.Document, updates map[string]interface{}) error {
	for col, val := range updates {
		switch col {
		case "title":
			doc.Title = val.(string)
		case "reviewer":
			doc.Reviewer = val.(string)
		case "approver":
			doc.Approver = val.(string)
		case "classification":
			doc.Classification = val.(string)
		case "effective_date":
			doc.EffectiveDate = toTimePtr(val)
		case "obsolescence_date":
			doc.ObsolescenceDate = toTimePtr(val)
		case "review_due_date":
			doc.ReviewDueDate = toTimePtr(val)
		default:
			return fmt.Errorf("unknown document column %q", col)
		}
	}
	return nil
}

func toTimePtr(val interface{}) *time.Time {
	switch v := val.(type) {
	case nil:
		return nil
	case *time.Time:
		return v
	case time.Time:
		return &v
	}
	return nil
}

func (s *Store) addEdge(edge *types.DependencyEdge) error {
	if err := edge.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	key := edgeKey(edge.FromID, edge.ToFamilyID)
	if existing, ok := s.edges[key]; ok && existing.Active {
		return fmt.Errorf("edge %s -> %s: %w", edge.FromID, edge.ToFamilyID, storage.ErrDuplicate)
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	edge.Active = true
	c := *edge
	s.edges[key] = &c
	return nil
}

func (s *Store) deactivateEdge(fromID, toFamilyID string) error {
	edge, ok := s.edges[edgeKey(fromID, toFamilyID)]
	if !ok || !edge.Active {
		return fmt.Errorf("edge %s -> %s: %w", fromID, toFamilyID, storage.ErrNotFound)
	}
	edge.Active = false
	return nil
}

func (s *Store) listEdges(activeOnly bool) []*types.DependencyEdge {
	var edges []*types.DependencyEdge
	for _, e := range s.edges {
		if activeOnly && !e.Active {
			continue
		}
		c := *e
		edges = append(edges, &c)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromID != edges[j].FromID {
			return edges[i].FromID < edges[j].FromID
		}
		return edges[i].ToFamilyID < edges[j].ToFamilyID
	})
	return edges
}

func (s *Store) edgesFrom(docID string) []*types.DependencyEdge {
	var edges []*types.DependencyEdge
	for _, e := range s.edges {
		if e.FromID == docID && e.Active {
			c := *e
			edges = append(edges, &c)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ToFamilyID < edges[j].ToFamilyID })
	return edges
}

func (s *Store) edgesToFamily(familyID string) []*types.DependencyEdge {
	var edges []*types.DependencyEdge
	for _, e := range s.edges {
		if e.ToFamilyID == familyID && e.Active {
			c := *e
			edges = append(edges, &c)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].FromID < edges[j].FromID })
	return edges
}

func (s *Store) appendTransition(rec *types.TransitionRecord) error {
	if rec.DocumentID == "" {
		return fmt.Errorf("transition record requires a document id")
	}
	if !rec.To.IsValid() {
		return fmt.Errorf("transition record has invalid target status: %s", rec.To)
	}
	if rec.Actor == "" {
		return fmt.Errorf("transition record requires an actor")
	}
	if !rec.ActorRole.IsValid() {
		return fmt.Errorf("transition record has invalid actor role: %s", rec.ActorRole)
	}
	s.nextRecID++
	rec.ID = s.nextRecID
	rec.Seq = len(s.transitions[rec.DocumentID]) + 1
	rec.CreatedAt = time.Now()

	c := *rec
	s.transitions[rec.DocumentID] = append(s.transitions[rec.DocumentID], &c)
	s.meta["audit_chain:"+rec.DocumentID] = rec.ChainHash(s.meta["audit_chain:"+rec.DocumentID])
	return nil
}

func (s *Store) getTransitions(docID string) []*types.TransitionRecord {
	recs := make([]*types.TransitionRecord, 0, len(s.transitions[docID]))
	for _, r := range s.transitions[docID] {
		c := *r
		recs = append(recs, &c)
	}
	return recs
}

func (s *Store) createTask(task *types.WorkflowTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if !task.Type.IsValid() {
		return fmt.Errorf("invalid task type: %s", task.Type)
	}
	if task.Assignee == "" {
		return fmt.Errorf("task requires an assignee")
	}
	if task.State == "" {
		task.State = types.TaskOpen
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	c := *task
	s.tasks[task.ID] = &c
	return nil
}

func (s *Store) closeTasks(docID string, taskType types.TaskType) error {
	for _, t := range s.tasks {
		if t.DocumentID == docID && t.Type == taskType && t.State == types.TaskOpen {
			t.State = types.TaskDone
			t.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *Store) escalateTask(id string) error {
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	if t.State != types.TaskOpen {
		return fmt.Errorf("task %s not open: %w", id, storage.ErrConflict)
	}
	t.State = types.TaskEscalated
	t.UpdatedAt = time.Now()
	return nil
}

func (s *Store) getTask(id string) (*types.WorkflowTask, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (s *Store) listTasks(filter types.TaskFilter) []*types.WorkflowTask {
	var tasks []*types.WorkflowTask
	for _, t := range s.tasks {
		if filter.State != nil && t.State != *filter.State {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.DocumentID != "" && t.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Assignee != "" && t.Assignee != filter.Assignee {
			continue
		}
		if filter.DueBefore != nil && (t.DueAt == nil || t.DueAt.After(*filter.DueBefore)) {
			continue
		}
		c := *t
		tasks = append(tasks, &c)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks
}

func (s *Store) getMeta(key string) (string, error) {
	v, ok := s.meta[key]
	if !ok {
		return "", fmt.Errorf("meta key %s: %w", key, storage.ErrNotFound)
	}
	return v, nil
}
