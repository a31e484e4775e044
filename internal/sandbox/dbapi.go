package sandbox

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"nlquery-agent/internal/docstore"
)

const (
	dbTypeName         = "nlquery.db"
	collectionTypeName = "nlquery.collection"
	cursorTypeName     = "nlquery.cursor"
)

// storeAPI exposes the read surface of a docstore.Store to one Lua state.
type storeAPI struct {
	store   docstore.Store
	ctx     context.Context
	maxDocs int
}

type collectionRef struct {
	name string
}

// cursor is lazy: nothing is read until to_list() or until it is bound to result.
type cursor struct {
	collection string
	filter     docstore.Filter
	opts       docstore.FindOptions
}

func (a *storeAPI) newDB(L *lua.LState) *lua.LUserData {
	methods := map[string]lua.LGFunction{
		"collection":            a.dbCollection,
		"list_collection_names": a.dbListCollectionNames,
	}

	mt := L.NewTypeMetatable(dbTypeName)
	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(2)
		if fn, ok := methods[key]; ok {
			L.Push(L.NewFunction(fn))
			return 1
		}
		L.Push(a.newCollection(L, key))
		return 1
	}))
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("db is read-only")
		return 0
	}))
	mt.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("db"))
		return 1
	}))

	ud := L.NewUserData()
	L.SetMetatable(ud, mt)
	return ud
}

func (a *storeAPI) dbCollection(L *lua.LState) int {
	L.CheckUserData(1)
	L.Push(a.newCollection(L, L.CheckString(2)))
	return 1
}

func (a *storeAPI) dbListCollectionNames(L *lua.LState) int {
	L.CheckUserData(1)
	names, err := a.store.ListCollections(a.ctx)
	if err != nil {
		L.RaiseError("list_collection_names: %s", err.Error())
	}
	L.Push(toLua(L, names))
	return 1
}

func (a *storeAPI) newCollection(L *lua.LState, name string) *lua.LUserData {
	mt := L.GetTypeMetatable(collectionTypeName)
	if mt == lua.LNil {
		meta := L.NewTypeMetatable(collectionTypeName)
		meta.RawSetString("__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"find":            a.collFind,
			"find_one":        a.collFindOne,
			"count_documents": a.collCount,
			"count":           a.collCount,
			"distinct":        a.collDistinct,
			"aggregate":       a.collAggregate,
		}))
		meta.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LString("collection(" + checkCollection(L).name + ")"))
			return 1
		}))
		mt = meta
	}

	ud := L.NewUserData()
	ud.Value = &collectionRef{name: name}
	L.SetMetatable(ud, mt)
	return ud
}

func checkCollection(L *lua.LState) *collectionRef {
	ud := L.CheckUserData(1)
	if c, ok := ud.Value.(*collectionRef); ok {
		return c
	}
	L.ArgError(1, "collection expected; call methods with ':'")
	return nil
}

func checkCursor(L *lua.LState) *cursor {
	ud := L.CheckUserData(1)
	if c, ok := ud.Value.(*cursor); ok {
		return c
	}
	L.ArgError(1, "cursor expected; call methods with ':'")
	return nil
}

func (a *storeAPI) collFind(L *lua.LState) int {
	coll := checkCollection(L)
	filter, err := toFilter(L.Get(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}

	cur := &cursor{collection: coll.name, filter: filter}
	if opts, ok := L.Get(3).(*lua.LTable); ok {
		applyFindOptions(L, cur, opts)
	}

	ud := L.NewUserData()
	ud.Value = cur
	L.SetMetatable(ud, a.cursorMeta(L))
	L.Push(ud)
	return 1
}

func applyFindOptions(L *lua.LState, cur *cursor, opts *lua.LTable) {
	if s := opts.RawGetString("sort"); s != lua.LNil {
		fields, err := toSort(s, lua.LNil)
		if err != nil {
			L.ArgError(3, err.Error())
		}
		cur.opts.Sort = fields
	}
	if n, ok := opts.RawGetString("limit").(lua.LNumber); ok {
		cur.opts.Limit = int64(n)
	}
	if n, ok := opts.RawGetString("skip").(lua.LNumber); ok {
		cur.opts.Skip = int64(n)
	}
	if p, ok := opts.RawGetString("projection").(*lua.LTable); ok {
		raw, err := fromLua(p, 0)
		if err != nil {
			L.ArgError(3, err.Error())
		}
		if m, isMap := raw.(map[string]interface{}); isMap {
			cur.opts.Projection = m
		}
	}
}

func (a *storeAPI) cursorMeta(L *lua.LState) lua.LValue {
	if mt := L.GetTypeMetatable(cursorTypeName); mt != lua.LNil {
		return mt
	}
	mt := L.NewTypeMetatable(cursorTypeName)
	mt.RawSetString("__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"sort": func(L *lua.LState) int {
			cur := checkCursor(L)
			fields, err := toSort(L.CheckAny(2), L.Get(3))
			if err != nil {
				L.ArgError(2, err.Error())
			}
			cur.opts.Sort = append(cur.opts.Sort, fields...)
			L.Push(L.Get(1))
			return 1
		},
		"limit": func(L *lua.LState) int {
			checkCursor(L).opts.Limit = int64(L.CheckInt(2))
			L.Push(L.Get(1))
			return 1
		},
		"skip": func(L *lua.LState) int {
			checkCursor(L).opts.Skip = int64(L.CheckInt(2))
			L.Push(L.Get(1))
			return 1
		},
		"to_list": func(L *lua.LState) int {
			docs, err := a.read(checkCursor(L))
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			L.Push(toLua(L, docs))
			return 1
		},
	}))
	return mt
}

// read materializes a cursor, refusing results larger than the document cap.
func (a *storeAPI) read(cur *cursor) ([]docstore.Document, error) {
	opts := cur.opts
	if opts.Limit <= 0 || opts.Limit > int64(a.maxDocs) {
		opts.Limit = int64(a.maxDocs) + 1
	}
	docs, err := a.store.Find(a.ctx, cur.collection, cur.filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find on %s: %w", cur.collection, err)
	}
	if len(docs) > a.maxDocs {
		return nil, fmt.Errorf("find on %s returned more than %d documents; add a filter or limit", cur.collection, a.maxDocs)
	}
	return docs, nil
}

func (a *storeAPI) collFindOne(L *lua.LState) int {
	coll := checkCollection(L)
	filter, err := toFilter(L.Get(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}
	doc, ok, err := a.store.FindOne(a.ctx, coll.name, filter)
	if err != nil {
		L.RaiseError("find_one on %s: %s", coll.name, err.Error())
	}
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(toLua(L, doc))
	return 1
}

func (a *storeAPI) collCount(L *lua.LState) int {
	coll := checkCollection(L)
	filter, err := toFilter(L.Get(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}
	n, err := a.store.Count(a.ctx, coll.name, filter)
	if err != nil {
		L.RaiseError("count_documents on %s: %s", coll.name, err.Error())
	}
	L.Push(lua.LNumber(n))
	return 1
}

func (a *storeAPI) collDistinct(L *lua.LState) int {
	coll := checkCollection(L)
	field := L.CheckString(2)
	filter, err := toFilter(L.Get(3))
	if err != nil {
		L.ArgError(3, err.Error())
	}
	values, err := a.store.Distinct(a.ctx, coll.name, field, filter)
	if err != nil {
		L.RaiseError("distinct on %s: %s", coll.name, err.Error())
	}
	L.Push(toLua(L, values))
	return 1
}

func (a *storeAPI) collAggregate(L *lua.LState) int {
	coll := checkCollection(L)
	raw, err := fromLua(L.CheckTable(2), 0)
	if err != nil {
		L.ArgError(2, err.Error())
	}
	stages, ok := raw.([]interface{})
	if !ok {
		L.ArgError(2, "pipeline must be an array of stages")
	}
	pipeline := make([]docstore.Document, 0, len(stages))
	for _, st := range stages {
		stage, isDoc := st.(map[string]interface{})
		if !isDoc {
			L.ArgError(2, "each pipeline stage must be a table")
		}
		pipeline = append(pipeline, stage)
	}

	docs, err := a.store.Aggregate(a.ctx, coll.name, pipeline)
	if err != nil {
		L.RaiseError("aggregate on %s: %s", coll.name, err.Error())
	}
	if len(docs) > a.maxDocs {
		L.RaiseError("aggregate on %s returned more than %d documents", coll.name, a.maxDocs)
	}
	L.Push(toLua(L, docs))
	return 1
}

// objectID implements ObjectId(hex).
func (a *storeAPI) objectID(L *lua.LState) int {
	id, err := docstore.ParseID(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
	}
	L.Push(newObjectID(L, id))
	return 1
}

func newObjectID(L *lua.LState, id docstore.ID) *lua.LUserData {
	mt := L.GetTypeMetatable(objectIDTypeKey)
	if mt == lua.LNil {
		meta := L.NewTypeMetatable(objectIDTypeKey)
		meta.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LString(idString(L.Get(1))))
			return 1
		}))
		meta.RawSetString("__eq", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LBool(idString(L.Get(1)) == idString(L.Get(2))))
			return 1
		}))
		meta.RawSetString("__concat", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LString(idString(L.Get(1)) + idString(L.Get(2))))
			return 1
		}))
		mt = meta
	}
	ud := L.NewUserData()
	ud.Value = id
	L.SetMetatable(ud, mt)
	return ud
}

func idString(v lua.LValue) string {
	if ud, ok := v.(*lua.LUserData); ok {
		if id, isID := ud.Value.(docstore.ID); isID {
			return id.String()
		}
	}
	return v.String()
}

// resultValue converts the bound result, reading a cursor if one was bound.
func (a *storeAPI) resultValue(v lua.LValue) (interface{}, error) {
	if ud, ok := v.(*lua.LUserData); ok {
		if cur, isCursor := ud.Value.(*cursor); isCursor {
			docs, err := a.read(cur)
			if err != nil {
				return nil, err
			}
			return documentsToValues(docs), nil
		}
	}
	return fromLua(v, 0)
}
