package generator

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/reflectgraph/internal/eventsource"
	"github.com/hanpama/reflectgraph/internal/executor"
	"github.com/hanpama/reflectgraph/internal/language"
	"github.com/hanpama/reflectgraph/internal/schema"
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"github.com/hanpama/reflectgraph/internal/wiring"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

type format int

const (
	hardcover format = iota + 1
	ebook
)

type library struct {
	provider      *memProvider
	queries       *typedesc.Class
	mutations     *typedesc.Class
	subscriptions *typedesc.Class
	// lastFilter records the decoded filter argument of books.
	lastFilter map[string]any
}

func newLibrary() *library {
	p := newMemProvider()
	lib := &library{provider: p}

	idClass := &typedesc.Class{Name: "ID", Kind: typedesc.KindScalar}
	node := iface("Node")
	book := object("Book")
	author := object("Author")
	formatClass := &typedesc.Class{Name: "Format", Kind: typedesc.KindEnum}
	result := &typedesc.Class{Name: "SearchResult", Kind: typedesc.KindUnion}
	filter := object("BookFilter")

	p.prop(node, "id", typedesc.Ref(idClass))
	p.possible["Node"] = []*typedesc.Class{book}

	p.supers["Book"] = []*typedesc.Class{node}
	p.prop(book, "id", typedesc.Ref(idClass))
	p.prop(book, "title", typedesc.Ref(stringClass)).Annotations.Description = "Title of the book."
	fp := p.prop(book, "format", typedesc.Ref(formatClass).OrNull())
	fp.Annotations.Deprecated = true
	fp.Annotations.DeprecationReason = "Use formats."
	p.fnWith(book, "author", typedesc.Ref(author), func(ctx context.Context, source any, args map[string]any) (any, error) {
		return map[string]any{"__class": author, "name": "Ann"}, nil
	})

	p.prop(author, "name", typedesc.Ref(stringClass))

	p.enums["Format"] = []*typedesc.EnumValue{
		{Name: "HARDCOVER", Value: hardcover},
		{Name: "EBOOK", Value: ebook, Annotations: typedesc.Annotations{Description: "Electronic edition."}},
	}
	p.possible["SearchResult"] = []*typedesc.Class{book, author}

	p.prop(filter, "title", typedesc.Ref(stringClass).OrNull())
	p.prop(filter, "format", typedesc.Ref(formatClass).OrNull())

	books := []any{
		map[string]any{"__class": book, "id": "1", "title": "Dune", "format": hardcover},
		map[string]any{"__class": book, "id": "2", "title": "Emma", "format": ebook},
	}

	lib.queries = object("LibraryQueries")
	p.fnWith(lib.queries, "books", typedesc.ListOf(typedesc.Ref(book)), func(ctx context.Context, source any, args map[string]any) (any, error) {
		f, _ := args["filter"].(map[string]any)
		lib.lastFilter = f
		if f == nil || f["format"] == nil {
			return books, nil
		}
		var out []any
		for _, b := range books {
			if b.(map[string]any)["format"] == f["format"] {
				out = append(out, b)
			}
		}
		return out, nil
	}, param("filter", typedesc.Ref(filter).OrNull()))
	p.fnWith(lib.queries, "node", typedesc.Ref(node).OrNull(), func(ctx context.Context, source any, args map[string]any) (any, error) {
		for _, b := range books {
			if b.(map[string]any)["id"] == args["id"] {
				return b, nil
			}
		}
		return nil, nil
	}, param("id", typedesc.Ref(idClass)))
	p.fnWith(lib.queries, "search", typedesc.ListOf(typedesc.Ref(result)), func(ctx context.Context, source any, args map[string]any) (any, error) {
		return []any{books[0], map[string]any{"__class": author, "name": args["text"]}}, nil
	}, param("text", typedesc.Ref(stringClass)))

	lib.mutations = object("LibraryMutations")
	p.fn(lib.mutations, "addBook", typedesc.Ref(book), param("title", typedesc.Ref(stringClass)))

	lib.subscriptions = object("LibrarySubscriptions")
	p.fnWith(lib.subscriptions, "bookAdded", typedesc.Ref(streamClass, typedesc.Ref(book)), func(ctx context.Context, source any, args map[string]any) (any, error) {
		return eventsource.Of(books...), nil
	})

	p.classify = func(v any) (*typedesc.Class, bool) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		c, ok := m["__class"].(*typedesc.Class)
		return c, ok
	}
	return lib
}

func (lib *library) generate(t *testing.T) (*schema.Schema, *wiring.Registry) {
	t.Helper()
	sch, reg, err := Generate(Config{Provider: lib.provider},
		[]TopLevelObject{{Class: lib.queries}},
		[]TopLevelObject{{Class: lib.mutations}},
		[]TopLevelObject{{Class: lib.subscriptions}},
	)
	require.NoError(t, err)
	return sch, reg
}

func TestLibrarySDL(t *testing.T) {
	sch, _ := newLibrary().generate(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "library", []byte(schema.Render(sch)))
}

func TestLibraryRoundTripsThroughSDL(t *testing.T) {
	sch, _ := newLibrary().generate(t)
	sdl := schema.Render(sch)
	parsed, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	require.Equal(t, sdl, schema.Render(parsed))
}

func TestLibraryExecution(t *testing.T) {
	lib := newLibrary()
	sch, reg := lib.generate(t)
	exec := executor.NewExecutor(reg, sch)

	doc, err := language.ParseQuery(`{
		books(filter: {format: EBOOK}) { __typename id title format author { name } }
		node(id: "1") { id ... on Book { title } }
		search(text: "Ann") {
			__typename
			... on Book { title }
			... on Author { name }
		}
	}`)
	require.NoError(t, err)

	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	want := &executor.ExecutionResult{
		Data: map[string]any{
			"books": []any{
				map[string]any{"__typename": "Book", "id": "2", "title": "Emma", "format": "EBOOK", "author": map[string]any{"name": "Ann"}},
			},
			"node": map[string]any{"id": "1", "title": "Dune"},
			"search": []any{
				map[string]any{"__typename": "Book", "title": "Dune"},
				map[string]any{"__typename": "Author", "name": "Ann"},
			},
		},
		Errors: []executor.GraphQLError{},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, map[string]any{"format": ebook}, lib.lastFilter)
}

func TestLibrarySubscription(t *testing.T) {
	sch, reg := newLibrary().generate(t)
	exec := executor.NewExecutor(reg, sch)
	doc, err := language.ParseQuery(`subscription { added: bookAdded { title author { name } } }`)
	require.NoError(t, err)

	stream, failed := exec.Subscribe(context.Background(), doc, "", nil, nil)
	require.Nil(t, failed)

	var titles []any
	for res := range stream.All(context.Background()) {
		require.Empty(t, res.Errors)
		added := res.Data.(map[string]any)["added"].(map[string]any)
		require.Equal(t, map[string]any{"name": "Ann"}, added["author"])
		titles = append(titles, added["title"])
	}
	require.Equal(t, []any{"Dune", "Emma"}, titles)
}
