package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeElastic(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body map[string]interface{})) *ElasticStore {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r, body)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewElasticStore(client)
}

func TestTranslateFilter(t *testing.T) {
	q, err := TranslateFilter(Filter{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"match_all": map[string]interface{}{}}, q)

	q, err = TranslateFilter(Filter{
		"status": "completed",
		"total":  Filter{"$gte": 100, "$lt": 500},
		"email":  Filter{"$exists": false},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": []interface{}{
				map[string]interface{}{"match_phrase": map[string]interface{}{"status": "completed"}},
				map[string]interface{}{"range": map[string]interface{}{"total": map[string]interface{}{"gte": 100, "lt": 500}}},
			},
			"must_not": []interface{}{
				map[string]interface{}{"exists": map[string]interface{}{"field": "email"}},
			},
		},
	}, q)

	q, err = TranslateFilter(Filter{"$or": []interface{}{Filter{"_id": ID("abc")}, Filter{"age": 30}}})
	require.NoError(t, err)
	boolQuery := q["bool"].(map[string]interface{})
	should := boolQuery["filter"].([]interface{})[0].(map[string]interface{})["bool"].(map[string]interface{})["should"].([]interface{})
	require.Len(t, should, 2)
	assert.Equal(t, []interface{}{"abc"}, should[0].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})[0].(map[string]interface{})["ids"].(map[string]interface{})["values"])

	_, err = TranslateFilter(Filter{"tags": Filter{"$size": 2}})
	assert.ErrorContains(t, err, "not supported on elasticsearch")
}

func TestAnchoredRegexp(t *testing.T) {
	assert.Equal(t, "ali.*", anchoredRegexp("^ali"))
	assert.Equal(t, ".*\\.com", anchoredRegexp("\\.com$"))
	assert.Equal(t, ".*mid.*", anchoredRegexp("mid"))
}

func TestElasticStoreListCollections(t *testing.T) {
	store := newFakeElastic(t, func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/_cat/indices"))
		_, _ = io.WriteString(w, `[{"index":"users"},{"index":".kibana"},{"index":"orders"}]`)
	})

	names, err := store.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, names)
}

func TestElasticStoreFind(t *testing.T) {
	store := newFakeElastic(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		assert.Equal(t, "/orders/_search", r.URL.Path)
		assert.EqualValues(t, 2, body["size"])
		assert.EqualValues(t, 1, body["from"])
		assert.Equal(t, []interface{}{"product"}, body["_source"])
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_id":"o-1","_source":{"product":"Desk"}},
			{"_id":"o-2","_source":{"product":"Chair"}}
		]}}`)
	})

	docs, err := store.Find(context.Background(), "orders", Filter{"status": "pending"}, FindOptions{
		Sort:       []SortField{{Field: "total", Descending: true}},
		Skip:       1,
		Limit:      2,
		Projection: map[string]interface{}{"product": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []Document{
		{"_id": ID("o-1"), "product": "Desk"},
		{"_id": ID("o-2"), "product": "Chair"},
	}, docs)
}

func TestElasticStoreCount(t *testing.T) {
	store := newFakeElastic(t, func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
		assert.Equal(t, "/users/_count", r.URL.Path)
		_, _ = io.WriteString(w, `{"count":10}`)
	})

	n, err := store.Count(context.Background(), "users", Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}

func TestElasticStoreDistinctFallsBackToKeyword(t *testing.T) {
	var fields []string
	store := newFakeElastic(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		terms := body["aggs"].(map[string]interface{})["values"].(map[string]interface{})["terms"].(map[string]interface{})
		field := terms["field"].(string)
		fields = append(fields, field)
		if field == "status" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"type":"illegal_argument_exception","reason":"Fielddata is disabled on text fields"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"hits":{"hits":[]},"aggregations":{"values":{"buckets":[{"key":"completed"},{"key":"pending"}]}}}`)
	})

	values, err := store.Distinct(context.Background(), "orders", "status", Filter{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"completed", "pending"}, values)
	assert.Equal(t, []string{"status", "status.keyword"}, fields)
}

func TestElasticStoreAggregateUnsupported(t *testing.T) {
	store := newFakeElastic(t, func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {})
	_, err := store.Aggregate(context.Background(), "orders", nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestElasticStoreFindHonoursLimitInsideWindow(t *testing.T) {
	store := newFakeElastic(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		assert.EqualValues(t, 1001, body["size"])
		assert.NotContains(t, body, "track_total_hits")
		_, _ = io.WriteString(w, `{"hits":{"hits":[{"_id":"e-1","_source":{"n":1}}]}}`)
	})

	docs, err := store.Find(context.Background(), "events", Filter{}, FindOptions{Limit: 1001})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestElasticStoreFindReportsCutResults(t *testing.T) {
	var total atomic.Int64
	total.Store(5)
	store := newFakeElastic(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		assert.EqualValues(t, 3, body["size"])
		assert.Equal(t, true, body["track_total_hits"])
		_, _ = io.WriteString(w, fmt.Sprintf(`{"hits":{"total":{"value":%d,"relation":"eq"},"hits":[
			{"_id":"e-1","_source":{}},{"_id":"e-2","_source":{}},{"_id":"e-3","_source":{}}
		]}}`, total.Load()))
	})
	store.resultWindow = 3

	_, err := store.Find(context.Background(), "events", Filter{}, FindOptions{})
	assert.ErrorIs(t, err, ErrResultWindow)

	_, err = store.Find(context.Background(), "events", Filter{}, FindOptions{Limit: 10})
	assert.ErrorIs(t, err, ErrResultWindow)

	total.Store(3)
	docs, err := store.Find(context.Background(), "events", Filter{}, FindOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	_, err = store.Find(context.Background(), "events", Filter{}, FindOptions{Skip: 3})
	assert.ErrorIs(t, err, ErrResultWindow)
}

func TestElasticStoreDistinctReportsCutValues(t *testing.T) {
	store := newFakeElastic(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		terms := body["aggs"].(map[string]interface{})["values"].(map[string]interface{})["terms"].(map[string]interface{})
		assert.EqualValues(t, defaultResultWindow, terms["size"])
		_, _ = io.WriteString(w, `{"hits":{"hits":[]},"aggregations":{"values":{"sum_other_doc_count":12,"buckets":[{"key":"a"}]}}}`)
	})

	_, err := store.Distinct(context.Background(), "events", "kind", Filter{})
	assert.ErrorIs(t, err, ErrResultWindow)
}
