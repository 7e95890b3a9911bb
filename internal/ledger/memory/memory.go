// Package memory is a ledger store held in process memory. It is used for
// development and tests.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dompet/internal/core"
	"dompet/internal/ledger"
)

type Store struct {
	mu     sync.RWMutex
	cats   []core.Category
	txs    []core.Transaction
	status map[int64]string
	nextID int64
	now    func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// New returns a store holding the given categories. IDs are reassigned and
// duplicate (type, name) pairs are dropped.
func New(cats []core.Category) *Store {
	s := &Store{now: time.Now, status: map[int64]string{}}
	seen := map[string]struct{}{}
	for _, c := range cats {
		if c.Validate() != nil {
			continue
		}
		key := c.OwnerID + "|" + string(c.Type) + "|" + strings.TrimSpace(c.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		s.nextID++
		c.ID = s.nextID
		c.Name = strings.TrimSpace(c.Name)
		s.cats = append(s.cats, c)
	}
	return s
}

// NewFromFiles seeds categories from base/seed_categories.txt, one
// "type:name" per line. Missing files fall back to a small default set.
func NewFromFiles(base string) *Store {
	cats := readSeed(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = []core.Category{
			{Name: "Salary", Type: core.Income},
			{Name: "Food", Type: core.Expense},
			{Name: "Transport", Type: core.Expense},
			{Name: "Housing", Type: core.Expense},
		}
	}
	return New(cats)
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	c.Name = strings.TrimSpace(c.Name)
	s.cats = append(s.cats, c)
	return c, nil
}

// DeleteCategory removes the category and every transaction filed under it.
func (s *Store) DeleteCategory(_ context.Context, owner core.OwnerScope, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.categoryIndex(owner, id)
	if idx < 0 {
		return ledger.ErrNotFound
	}
	s.cats = append(s.cats[:idx], s.cats[idx+1:]...)
	kept := s.txs[:0]
	for _, t := range s.txs {
		if t.CategoryID != id {
			kept = append(kept, t)
			continue
		}
		delete(s.status, t.ID)
	}
	s.txs = kept
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryIndex(core.OwnerScope{OwnerID: t.OwnerID}, t.CategoryID) < 0 {
		return core.Transaction{}, core.ErrMissingCategory
	}
	s.nextID++
	t.ID = s.nextID
	t.CreatedAt = s.now()
	s.txs = append(s.txs, t)
	s.status[t.ID] = statusPending
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, owner core.OwnerScope, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := ledger.Query{Owner: owner}
	for i, t := range s.txs {
		if t.ID == id && q.Matches(t.OwnerID) {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			delete(s.status, id)
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (s *Store) ListCategories(_ context.Context, owner core.OwnerScope) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := ledger.Query{Owner: owner}
	out := make([]core.Category, 0, len(s.cats))
	for _, c := range s.cats {
		if q.Matches(c.OwnerID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, owner core.OwnerScope, id int64) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.categoryIndex(owner, id)
	if idx < 0 {
		return core.Category{}, ledger.ErrNotFound
	}
	return s.cats[idx], nil
}

// ListEntries returns in-range entries, newest first.
func (s *Store) ListEntries(_ context.Context, q ledger.Query) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.entries(q)
	core.SortNewestFirst(out)
	return out, nil
}

func (s *Store) GetEntry(_ context.Context, owner core.OwnerScope, id int64) (core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := ledger.Query{Owner: owner}
	for _, t := range s.txs {
		if t.ID == id && q.Matches(t.OwnerID) {
			return s.join(t), nil
		}
	}
	return core.Entry{}, ledger.ErrNotFound
}

func (s *Store) DailyTotals(_ context.Context, q ledger.Query) ([]ledger.DailyTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.DailyTotal
	index := map[string]int{}
	for _, e := range s.entries(q) {
		key := e.Date.String() + "|" + string(e.CategoryType)
		if i, ok := index[key]; ok {
			out[i].Total = out[i].Total.Add(e.Amount)
			continue
		}
		index[key] = len(out)
		out = append(out, ledger.DailyTotal{Date: e.Date, Type: e.CategoryType, Total: e.Amount})
	}
	return out, nil
}

func (s *Store) CategoryTotals(_ context.Context, q ledger.Query, typ core.CategoryType) ([]ledger.CategoryTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.CategoryTotal
	index := map[string]int{}
	for _, e := range s.entries(q) {
		if e.CategoryType != typ {
			continue
		}
		if i, ok := index[e.CategoryName]; ok {
			out[i].Total = out[i].Total.Add(e.Amount)
			continue
		}
		index[e.CategoryName] = len(out)
		out = append(out, ledger.CategoryTotal{Name: e.CategoryName, Total: e.Amount})
	}
	return out, nil
}

func (s *Store) CountTransactions(_ context.Context, q ledger.Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries(q)), nil
}

func (s *Store) CountActiveCategories(_ context.Context, q ledger.Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[int64]struct{}{}
	for _, e := range s.entries(q) {
		seen[e.CategoryID] = struct{}{}
	}
	return len(seen), nil
}

func (s *Store) RecentEntries(_ context.Context, q ledger.Query, limit int) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.entries(q)
	core.SortNewestFirst(out)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

const (
	statusPending  = "pending"
	statusMirrored = "mirrored"
	statusError    = "error"
)

func (s *Store) PendingMirror(_ context.Context, limit int) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, t := range s.txs {
		if s.status[t.ID] == statusMirrored {
			continue
		}
		ids = append(ids, t.ID)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (s *Store) MarkMirrored(_ context.Context, id int64) error {
	return s.mark(id, statusMirrored)
}

func (s *Store) MarkMirrorFailed(_ context.Context, id int64) error {
	return s.mark(id, statusError)
}

func (s *Store) mark(id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.status[id]; !ok {
		return ledger.ErrNotFound
	}
	s.status[id] = status
	return nil
}

// entries joins in-range transactions with their categories. Callers hold the lock.
func (s *Store) entries(q ledger.Query) []core.Entry {
	out := []core.Entry{}
	for _, t := range s.txs {
		if q.Matches(t.OwnerID) && q.Contains(t.Date) {
			out = append(out, s.join(t))
		}
	}
	return out
}

func (s *Store) join(t core.Transaction) core.Entry {
	e := core.Entry{Transaction: t}
	for _, c := range s.cats {
		if c.ID == t.CategoryID {
			e.CategoryName = c.Name
			e.CategoryType = c.Type
			break
		}
	}
	return e
}

func (s *Store) categoryIndex(owner core.OwnerScope, id int64) int {
	q := ledger.Query{Owner: owner}
	for i, c := range s.cats {
		if c.ID == id && q.Matches(c.OwnerID) {
			return i
		}
	}
	return -1
}

func readSeed(path string) []core.Category {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Category
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		typ, name, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		t, err := core.ParseCategoryType(typ)
		if err != nil {
			continue
		}
		out = append(out, core.Category{Name: strings.TrimSpace(name), Type: t})
	}
	return out
}
