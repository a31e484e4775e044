package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// defaultResultWindow is the index.max_result_window default; from+size
// past it is refused by the cluster.
const defaultResultWindow = 10000

// ErrResultWindow reports a result that does not fit in one search request.
var ErrResultWindow = errors.New("result exceeds the elasticsearch result window")

// ElasticStore treats each index as a collection.
type ElasticStore struct {
	client       *elasticsearch.Client
	resultWindow int
}

func NewElasticStore(client *elasticsearch.Client) *ElasticStore {
	return &ElasticStore{client: client, resultWindow: defaultResultWindow}
}

type esHit struct {
	ID     string                 `json:"_id"`
	Source map[string]interface{} `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		SumOtherDocCount int64 `json:"sum_other_doc_count"`
		Buckets          []struct {
			Key interface{} `json:"key"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

func decodeResponse(res *esapi.Response, op string, out interface{}) error {
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch %s: %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("elasticsearch %s: decode: %w", op, err)
	}
	return nil
}

func (s *ElasticStore) ListCollections(ctx context.Context) ([]string, error) {
	res, err := s.client.Cat.Indices(
		s.client.Cat.Indices.WithContext(ctx),
		s.client.Cat.Indices.WithFormat("json"),
		s.client.Cat.Indices.WithH("index"),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch cat indices: %w", err)
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := decodeResponse(res, "cat indices", &rows); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if !strings.HasPrefix(r.Index, ".") {
			names = append(names, r.Index)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *ElasticStore) SampleOne(ctx context.Context, collection string) (Document, bool, error) {
	return s.FindOne(ctx, collection, Filter{})
}

func (s *ElasticStore) search(ctx context.Context, index string, body map[string]interface{}) (*esSearchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}

	var out esSearchResponse
	if err := decodeResponse(res, "search", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ElasticStore) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error) {
	query, err := TranslateFilter(filter)
	if err != nil {
		return nil, err
	}

	from := int(opts.Skip)
	if from >= s.resultWindow {
		return nil, fmt.Errorf("%w: skip %d reaches the window of %d", ErrResultWindow, from, s.resultWindow)
	}
	size := s.resultWindow - from
	// without a limit that fits the window, the total tells whether hits were cut
	bounded := opts.Limit > 0 && opts.Limit <= int64(size)
	if bounded {
		size = int(opts.Limit)
	}
	body := map[string]interface{}{
		"query": query,
		"size":  size,
		"from":  from,
	}
	if !bounded {
		body["track_total_hits"] = true
	}
	if len(opts.Sort) > 0 {
		sorts := make([]interface{}, 0, len(opts.Sort))
		for _, f := range opts.Sort {
			order := "asc"
			if f.Descending {
				order = "desc"
			}
			sorts = append(sorts, map[string]interface{}{f.Field: map[string]interface{}{"order": order}})
		}
		body["sort"] = sorts
	}
	if includes := projectionIncludes(opts.Projection); len(includes) > 0 {
		body["_source"] = includes
	}

	resp, err := s.search(ctx, collection, body)
	if err != nil {
		return nil, err
	}

	if !bounded {
		wanted := resp.Hits.Total.Value - int64(from)
		if opts.Limit > 0 && opts.Limit < wanted {
			wanted = opts.Limit
		}
		if wanted > int64(len(resp.Hits.Hits)) {
			return nil, fmt.Errorf("%w: %s matches %d documents, at most %d can be read", ErrResultWindow, collection, resp.Hits.Total.Value, s.resultWindow)
		}
	}

	docs := make([]Document, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		docs = append(docs, hitDocument(h))
	}
	return docs, nil
}

func hitDocument(h esHit) Document {
	doc := make(Document, len(h.Source)+1)
	for k, v := range h.Source {
		doc[k] = v
	}
	doc["_id"] = ID(h.ID)
	return doc
}

func projectionIncludes(p map[string]interface{}) []string {
	var out []string
	for k, v := range p {
		if k != "_id" && isTruthy(v) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *ElasticStore) FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error) {
	docs, err := s.Find(ctx, collection, filter, FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

func (s *ElasticStore) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	query, err := TranslateFilter(filter)
	if err != nil {
		return 0, err
	}
	payload, _ := json.Marshal(map[string]interface{}{"query": query})

	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(collection),
		s.client.Count.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: %w", err)
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := decodeResponse(res, "count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (s *ElasticStore) Distinct(ctx context.Context, collection, field string, filter Filter) ([]interface{}, error) {
	query, err := TranslateFilter(filter)
	if err != nil {
		return nil, err
	}

	values, err := s.termsAggregation(ctx, collection, field, query)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "fielddata") {
		// text fields aggregate through their keyword sub-field
		values, err = s.termsAggregation(ctx, collection, field+".keyword", query)
	}
	return values, err
}

func (s *ElasticStore) termsAggregation(ctx context.Context, index, field string, query interface{}) ([]interface{}, error) {
	resp, err := s.search(ctx, index, map[string]interface{}{
		"size":  0,
		"query": query,
		"aggs": map[string]interface{}{
			"values": map[string]interface{}{
				"terms": map[string]interface{}{"field": field, "size": s.resultWindow},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	agg := resp.Aggregations["values"]
	if agg.SumOtherDocCount > 0 {
		return nil, fmt.Errorf("%w: %s has more than %d distinct values", ErrResultWindow, field, s.resultWindow)
	}
	out := make([]interface{}, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		out = append(out, b.Key)
	}
	return out, nil
}

func (s *ElasticStore) Aggregate(context.Context, string, []Document) ([]Document, error) {
	return nil, fmt.Errorf("%w: aggregate", ErrUnsupported)
}

func (s *ElasticStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	return decodeResponse(res, "ping", nil)
}

func (s *ElasticStore) Close(context.Context) error {
	return nil
}

// TranslateFilter maps the query-operator vocabulary onto an Elasticsearch bool query.
func TranslateFilter(filter Filter) (map[string]interface{}, error) {
	if len(filter) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}, nil
	}

	var must, mustNot []interface{}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		cond := filter[key]
		switch key {
		case "$and", "$or", "$nor":
			subs, err := subFilters(cond)
			if err != nil {
				return nil, err
			}
			clauses := make([]interface{}, 0, len(subs))
			for _, sub := range subs {
				q, err := TranslateFilter(sub)
				if err != nil {
					return nil, err
				}
				clauses = append(clauses, q)
			}
			switch key {
			case "$and":
				must = append(must, clauses...)
			case "$or":
				must = append(must, map[string]interface{}{
					"bool": map[string]interface{}{"should": clauses, "minimum_should_match": 1},
				})
			default:
				mustNot = append(mustNot, clauses...)
			}
		default:
			if strings.HasPrefix(key, "$") {
				return nil, fmt.Errorf("unsupported top-level operator %s", key)
			}
			pos, neg, err := translateField(key, cond)
			if err != nil {
				return nil, err
			}
			must = append(must, pos...)
			mustNot = append(mustNot, neg...)
		}
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["filter"] = must
	}
	if len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}
	return map[string]interface{}{"bool": boolQuery}, nil
}

func equalityClause(field string, v interface{}) interface{} {
	if field == "_id" {
		return map[string]interface{}{"ids": map[string]interface{}{"values": []interface{}{fmt.Sprint(v)}}}
	}
	if s, ok := toText(v); ok {
		return map[string]interface{}{"match_phrase": map[string]interface{}{field: s}}
	}
	return map[string]interface{}{"term": map[string]interface{}{field: v}}
}

func translateField(field string, cond interface{}) (pos, neg []interface{}, err error) {
	ops, isOps := isOperatorMap(cond)
	if !isOps {
		return []interface{}{equalityClause(field, cond)}, nil, nil
	}

	rangeQuery := map[string]interface{}{}
	opNames := make([]string, 0, len(ops))
	for op := range ops {
		opNames = append(opNames, op)
	}
	sort.Strings(opNames)

	for _, op := range opNames {
		arg := ops[op]
		switch op {
		case "$eq":
			pos = append(pos, equalityClause(field, arg))
		case "$ne":
			neg = append(neg, equalityClause(field, arg))
		case "$gt", "$gte", "$lt", "$lte":
			rangeQuery[strings.TrimPrefix(op, "$")] = arg
		case "$in", "$nin":
			list, ok := arg.([]interface{})
			if !ok {
				return nil, nil, fmt.Errorf("%s expects an array", op)
			}
			should := make([]interface{}, 0, len(list))
			for _, v := range list {
				should = append(should, equalityClause(field, v))
			}
			clause := map[string]interface{}{"bool": map[string]interface{}{"should": should, "minimum_should_match": 1}}
			if op == "$in" {
				pos = append(pos, clause)
			} else {
				neg = append(neg, clause)
			}
		case "$exists":
			clause := map[string]interface{}{"exists": map[string]interface{}{"field": field}}
			if isTruthy(arg) {
				pos = append(pos, clause)
			} else {
				neg = append(neg, clause)
			}
		case "$regex":
			pattern, ok := arg.(string)
			if !ok {
				return nil, nil, fmt.Errorf("$regex expects a string")
			}
			options, _ := ops["$options"].(string)
			pos = append(pos, map[string]interface{}{"regexp": map[string]interface{}{
				field: map[string]interface{}{
					"value":            anchoredRegexp(pattern),
					"case_insensitive": strings.Contains(options, "i"),
				},
			}})
		case "$options":
		default:
			return nil, nil, fmt.Errorf("operator %s is not supported on elasticsearch", op)
		}
	}
	if len(rangeQuery) > 0 {
		pos = append(pos, map[string]interface{}{"range": map[string]interface{}{field: rangeQuery}})
	}
	return pos, neg, nil
}

// anchoredRegexp converts a search-style pattern into Lucene syntax, where
// every pattern is implicitly anchored at both ends.
func anchoredRegexp(pattern string) string {
	if strings.HasPrefix(pattern, "^") {
		pattern = strings.TrimPrefix(pattern, "^")
	} else {
		pattern = ".*" + pattern
	}
	if strings.HasSuffix(pattern, "$") {
		pattern = strings.TrimSuffix(pattern, "$")
	} else {
		pattern += ".*"
	}
	return pattern
}
