package docstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps collections in process memory. It backs the demo mode and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Document)}
}

// CreateCollection registers an empty collection.
func (s *MemoryStore) CreateCollection(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = []Document{}
	}
}

// Insert stores copies of docs, assigning an _id where missing, and returns the ids.
func (s *MemoryStore) Insert(collection string, docs ...Document) []ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]ID, 0, len(docs))
	for _, d := range docs {
		cp := cloneDocument(d)
		id, ok := cp["_id"].(ID)
		if !ok {
			if raw, isString := cp["_id"].(string); isString {
				id = ID(raw)
			} else {
				id = NewID()
			}
			cp["_id"] = id
		}
		s.collections[collection] = append(s.collections[collection], cp)
		ids = append(ids, id)
	}
	return ids
}

// Drop removes every collection.
func (s *MemoryStore) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string][]Document)
}

func (s *MemoryStore) ListCollections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) SampleOne(ctx context.Context, collection string) (Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	if len(docs) == 0 {
		return nil, false, nil
	}
	return cloneDocument(docs[0]), true, nil
}

func (s *MemoryStore) snapshot(collection string, filter Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0)
	for _, d := range s.collections[collection] {
		ok, err := Match(d, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cloneDocument(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := s.snapshot(collection, filter)
	if err != nil {
		return nil, err
	}

	SortDocuments(docs, opts.Sort)
	docs = window(docs, true, int(opts.Skip))
	docs = window(docs, false, int(opts.Limit))

	if len(opts.Projection) > 0 {
		for i, d := range docs {
			p, err := project(d, opts.Projection)
			if err != nil {
				return nil, err
			}
			docs[i] = p
		}
	}
	return docs, nil
}

func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error) {
	docs, err := s.Find(ctx, collection, filter, FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	docs, err := s.snapshot(collection, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (s *MemoryStore) Distinct(ctx context.Context, collection, field string, filter Filter) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := s.snapshot(collection, filter)
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, 0)
	addUnique := func(v interface{}) {
		for _, existing := range out {
			if valuesEqual(existing, v) {
				return
			}
		}
		out = append(out, v)
	}
	for _, d := range docs {
		v, ok := lookup(d, field)
		if !ok {
			continue
		}
		if arr, isArr := v.([]interface{}); isArr {
			for _, el := range arr {
				addUnique(el)
			}
			continue
		}
		addUnique(v)
	}
	return out, nil
}

func (s *MemoryStore) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckPipeline(pipeline); err != nil {
		return nil, err
	}
	docs, err := s.snapshot(collection, Filter{})
	if err != nil {
		return nil, err
	}
	return RunPipeline(docs, pipeline)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}
