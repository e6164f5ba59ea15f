// Package memstore provides an in-memory implementation of intel.Store.
// Suitable for tests and local development without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/lookout/internal/intel"
)

type pairKey struct {
	articleID      int64
	organizationID int64
}

// Store holds pipeline state in memory, mirroring the relational
// selection and upsert semantics of the Postgres store.
type Store struct {
	mu              sync.RWMutex
	articles        map[int64]intel.Article
	organizations   map[int64]intel.Organization
	classifications map[pairKey]*intel.Classification
	details         map[int64]*intel.AssessmentDetail // classification ID -> detail
	nextID          int64
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		articles:        make(map[int64]intel.Article),
		organizations:   make(map[int64]intel.Organization),
		classifications: make(map[pairKey]*intel.Classification),
		details:         make(map[int64]*intel.AssessmentDetail),
		nextID:          1,
	}
}

// AddArticle seeds a read-only article, standing in for the feed collaborator.
func (s *Store) AddArticle(a intel.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[a.ID] = a
}

// AddOrganization seeds a read-only organization, standing in for tenant
// management.
func (s *Store) AddOrganization(o intel.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[o.ID] = o
}

// ActiveOrganizations returns active organizations ordered by ID.
func (s *Store) ActiveOrganizations(_ context.Context) ([]intel.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orgs []intel.Organization
	for _, o := range s.organizations {
		if o.Active {
			orgs = append(orgs, o)
		}
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
	return orgs, nil
}

// Organization returns one organization by ID.
func (s *Store) Organization(_ context.Context, id int64) (*intel.Organization, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.organizations[id]
	if !ok {
		return nil, false, nil
	}
	cp := o
	return &cp, true, nil
}

// PendingArticles returns articles needing classification for org, oldest
// publish time first.
func (s *Store) PendingArticles(_ context.Context, org *intel.Organization, limit int) ([]intel.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []intel.Article
	for _, a := range s.articles {
		if !org.CreatedAt.IsZero() && a.Published.Before(org.CreatedAt) {
			continue
		}
		c, ok := s.classifications[pairKey{a.ID, org.ID}]
		if ok && !c.Status.Retryable() {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Published.Before(out[j].Published) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertClassification inserts or overwrites the row for the
// (article, organization) pair. Assessment rollup fields survive an
// overwrite, matching the SQL upsert's column list.
func (s *Store) UpsertClassification(_ context.Context, c *intel.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{c.ArticleID, c.OrganizationID}
	now := time.Now()

	existing, ok := s.classifications[key]
	if !ok {
		cp := *c
		cp.ID = s.nextID
		s.nextID++
		cp.ClassifiedAt = now
		cp.AssessmentStatus = intel.AssessmentWaiting
		s.classifications[key] = &cp
		c.ID = cp.ID
		return nil
	}

	existing.Label = c.Label
	existing.Explanation = c.Explanation
	existing.Advice = c.Advice
	existing.Reasoning = c.Reasoning
	existing.Status = c.Status
	existing.ClassifiedAt = now
	c.ID = existing.ID
	return nil
}

// AssessmentQueue returns classified rows awaiting assessment, oldest
// classification first, joined with article and organization context.
func (s *Store) AssessmentQueue(_ context.Context, limit int) ([]intel.AssessmentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []intel.AssessmentItem
	for _, c := range s.classifications {
		if c.Status != intel.StatusClassified {
			continue
		}
		if c.AssessmentStatus != intel.AssessmentWaiting && c.AssessmentStatus != intel.AssessmentFailed {
			continue
		}
		item := intel.AssessmentItem{Classification: *c}
		if a, ok := s.articles[c.ArticleID]; ok {
			item.ArticleTitle = a.Title
			item.ArticleSummary = a.Summary
		}
		if o, ok := s.organizations[c.OrganizationID]; ok {
			item.CompanyContext = o.CompanyContext
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Classification.ClassifiedAt.Before(items[j].Classification.ClassifiedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// SaveAssessment updates the rollup on the classification row and, when the
// status is GIVEN, upserts the detail record. A FAILED save never touches
// an existing detail.
func (s *Store) SaveAssessment(_ context.Context, r *intel.AssessmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.classifications {
		if c.ID != r.ClassificationID {
			continue
		}
		c.AssessmentStatus = r.Status
		c.CriticalitySummary = r.Summary
		c.CriticalityScore = r.Score
		c.AssessedAt = time.Now()

		if r.Status == intel.AssessmentGiven && r.Detail != nil {
			cp := *r.Detail
			s.details[r.ClassificationID] = &cp
		}
		return nil
	}
	return nil
}

// Classification returns a copy of the stored row for a pair, for tests.
func (s *Store) Classification(articleID, organizationID int64) (*intel.Classification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.classifications[pairKey{articleID, organizationID}]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// Detail returns a copy of the stored assessment detail, for tests.
func (s *Store) Detail(classificationID int64) (*intel.AssessmentDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.details[classificationID]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

// Count returns the number of classification rows, for tests.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.classifications)
}
