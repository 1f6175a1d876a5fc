package goreflect

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/reflectgraph/internal/executor"
	"github.com/hanpama/reflectgraph/internal/generator"
	"github.com/hanpama/reflectgraph/internal/language"
	"github.com/hanpama/reflectgraph/internal/schema"
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"github.com/hanpama/reflectgraph/internal/wiring"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func (s *bookstore) generate(t *testing.T) (*schema.Schema, *wiring.Registry) {
	t.Helper()
	sch, reg, err := generator.Generate(
		generator.Config{Provider: s.provider, DisallowedOwners: DisallowedOwners},
		s.provider.TopLevel(s.queries),
		s.provider.TopLevel(s.mutations),
		s.provider.TopLevel(s.subscriptions),
	)
	require.NoError(t, err)
	return sch, reg
}

func TestBookstoreSDL(t *testing.T) {
	sch, _ := newBookstore().generate(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "bookstore", []byte(schema.Render(sch)))
}

func TestClassKinds(t *testing.T) {
	s := newBookstore()
	p := s.provider

	cases := []struct {
		sample any
		name   string
		kind   typedesc.Kind
	}{
		{(*Book)(nil), "Book", typedesc.KindObject},
		{Author{}, "Author", typedesc.KindObject},
		{(*Node)(nil), "Node", typedesc.KindInterface},
		{(*SearchResult)(nil), "SearchResult", typedesc.KindUnion},
		{Fiction, "Genre", typedesc.KindEnum},
	}
	for _, tc := range cases {
		c := p.Class(tc.sample)
		require.NotNil(t, c, tc.name)
		require.Equal(t, tc.name, c.Name)
		require.Equal(t, tc.kind, c.Kind, tc.name)
	}

	require.Same(t, p.Class(&Book{}), p.Class((*Book)(nil)))
	require.Equal(t, "", p.Class(struct{ X int }{}).Name)
	require.Nil(t, p.Class(nil))
}

func TestTypeRefs(t *testing.T) {
	p := New()
	p.Enum(Fiction, History)

	cases := []struct {
		typ  reflect.Type
		want string
	}{
		{reflect.TypeFor[string](), "String"},
		{reflect.TypeFor[*int](), "Int?"},
		{reflect.TypeFor[uint16](), "Int"},
		{reflect.TypeFor[float32](), "Float"},
		{reflect.TypeFor[bool](), "Boolean"},
		{reflect.TypeFor[[]byte](), "String"},
		{reflect.TypeFor[[]*Book](), "[Book?]"},
		{reflect.TypeFor[[3]Genre](), "[Genre]"},
		{reflect.TypeFor[<-chan int](), "Stream<Int>"},
		{reflect.TypeFor[func(func(*Author, error) bool)](), "Stream<Author?>"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, p.typeRef(tc.typ).String(), tc.typ.String())
	}

	for _, typ := range []reflect.Type{
		reflect.TypeFor[map[string]int](),
		reflect.TypeFor[func() int](),
		reflect.TypeFor[any](),
		reflect.TypeFor[**Book](),
		reflect.TypeFor[chan<- int](),
		reflect.TypeFor[uint64](),
		reflect.TypeFor[[]map[string]int](),
	} {
		require.Nil(t, p.typeRef(typ), typ.String())
	}
}

type Page[T any] struct {
	Items []T
}

func TestTypeNameFoldsTypeArguments(t *testing.T) {
	require.Equal(t, "PageBook", typeName(reflect.TypeFor[Page[Book]]()))
	require.Equal(t, "PageAuthor", typeName(reflect.TypeFor[Page[*Author]]()))
	require.Equal(t, "Book", typeName(reflect.TypeFor[Book]()))
}

func TestPropertiesAndOwners(t *testing.T) {
	p := newBookstore().provider
	book := p.Class((*Book)(nil))

	props := map[string]*typedesc.Property{}
	for _, prop := range p.Properties(book) {
		props[prop.Name] = prop
	}

	require.Equal(t, "Audit", props["CreatedBy"].Owner.Name)
	require.Equal(t, "Book", props["Title"].Owner.Name)
	require.Equal(t, "Title of the book.", props["Title"].Annotations.Description)
	require.True(t, props["Pages"].Annotations.Deprecated)
	require.Equal(t, "code", props["ISBN"].Annotations.Name)
	require.True(t, props["Secret"].Annotations.Ignore)
	require.Equal(t, typedesc.Internal, props["Shelf"].Visibility)
	require.Equal(t, typedesc.Private, props["notes"].Visibility)
	require.Nil(t, props["Meta"].Type)

	v, err := props["CreatedBy"].Get(context.Background(), &Book{Audit: Audit{CreatedBy: "ann"}})
	require.NoError(t, err)
	require.Equal(t, "ann", v)

	fns := map[string]*typedesc.Function{}
	for _, fn := range p.Functions(book) {
		fns[fn.Name] = fn
	}
	require.Equal(t, "Mutex", fns["TryLock"].Owner.Name)
	require.Equal(t, "Book", fns["Key"].Owner.Name)
	require.Nil(t, fns["Lock"].Invoke)
	require.True(t, fns["Author"].Params[0].Injected)
}

func TestDisallowedOwnersHidePromotedMethods(t *testing.T) {
	s := newBookstore()
	sch, _, err := generator.Generate(generator.Config{Provider: s.provider},
		s.provider.TopLevel(s.queries), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, sch.Types["Book"].Field("tryLock"))

	sch, _ = s.generate(t)
	require.Nil(t, sch.Types["Book"].Field("tryLock"))
}

func TestBookstoreExecution(t *testing.T) {
	s := newBookstore()
	sch, reg := s.generate(t)
	exec := executor.NewExecutor(reg, sch)

	doc, err := language.ParseQuery(`{
		books(filter: {titlePrefix: "D", genres: [FICTION]}) {
			__typename title genre pages createdBy key author { name }
		}
		node(key: "book:SPQR") { key ... on Book { title genre } }
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
				map[string]any{
					"__typename": "Book",
					"title":      "Dune",
					"genre":      "FICTION",
					"pages":      nil,
					"createdBy":  "ann",
					"key":        "book:Dune",
					"author":     map[string]any{"name": "Frank"},
				},
			},
			"node": map[string]any{"key": "book:SPQR", "title": "SPQR", "genre": "HISTORY"},
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
}

func TestBookstoreMutation(t *testing.T) {
	s := newBookstore()
	sch, reg := s.generate(t)
	exec := executor.NewExecutor(reg, sch)

	doc, err := language.ParseQuery(`mutation($title: String!) {
		addBook(title: $title, genre: HISTORY) { title genre author { name } }
	}`)
	require.NoError(t, err)

	res := exec.ExecuteRequest(context.Background(), doc, "", map[string]any{"title": "Rome"}, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{
		"addBook": map[string]any{"title": "Rome", "genre": "HISTORY", "author": nil},
	}, res.Data)
	require.Len(t, s.queries.books, 3)
	require.Equal(t, History, s.queries.books[2].Genre)

	res = exec.ExecuteRequest(context.Background(), doc, "", map[string]any{"title": ""}, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "title is required", res.Errors[0].Message)
	require.Equal(t, map[string]any{"addBook": nil}, res.Data)
}

func TestBookstoreSubscriptions(t *testing.T) {
	s := newBookstore()
	sch, reg := s.generate(t)
	exec := executor.NewExecutor(reg, sch)
	ctx := context.Background()

	collect := func(query string) []any {
		t.Helper()
		doc, err := language.ParseQuery(query)
		require.NoError(t, err)
		stream, failed := exec.Subscribe(ctx, doc, "", nil, nil)
		require.Nil(t, failed)
		var out []any
		for res := range stream.All(ctx) {
			require.Empty(t, res.Errors)
			out = append(out, res.Data.(map[string]any)[stream.ResponseName()])
		}
		return out
	}

	require.Equal(t, []any{3, 2, 1}, collect(`subscription { countdown(from: 3) }`))
	require.Equal(t, []any{"fire", "flood"}, collect(`subscription { alerts }`))

	s.subscriptions.added <- &Book{Title: "Emma"}
	close(s.subscriptions.added)
	require.Equal(t, []any{map[string]any{"title": "Emma"}}, collect(`subscription { bookAdded { title } }`))
}

type Clock struct{ now time.Time }

func (c Clock) Now() time.Time { return c.now }

func TestCustomScalarAndValueReceiver(t *testing.T) {
	p := New()
	p.Scalar(time.Time{}, "Time")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	reg := wiring.New()
	reg.SetSerializer("Time", func(v any) (any, error) {
		return v.(time.Time).Format(time.RFC3339), nil
	})
	sch, _, err := generator.Generate(generator.Config{
		Provider: p,
		Registry: reg,
		Hooks: generator.Hooks{
			WillGenerateType: func(ref *typedesc.TypeRef, input bool) *schema.Type {
				if ref.Class != nil && ref.Class.Name == "Time" {
					return schema.NewType("Time", schema.TypeKindScalar, "")
				}
				return nil
			},
		},
	}, p.TopLevel(Clock{now: at}), nil, nil)
	require.NoError(t, err)

	doc, err := language.ParseQuery(`{ now }`)
	require.NoError(t, err)
	res := executor.NewExecutor(reg, sch).ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"now": "2024-05-01T12:00:00Z"}, res.Data)
}

type Anonymous struct{}

func (Anonymous) Point() struct{ X int } { return struct{ X int }{1} }

func TestUnnamedReturnType(t *testing.T) {
	p := New()
	_, _, err := generator.Generate(generator.Config{Provider: p}, p.TopLevel(Anonymous{}), nil, nil)
	var notNamed *generator.TypeNotNamedError
	require.True(t, errors.As(err, &notNamed), "got %v", err)
}

func TestAssign(t *testing.T) {
	var dst struct {
		Count  int32
		Name   *string
		Tags   []string
		Filter *BookFilter
	}
	v := reflect.ValueOf(&dst).Elem()

	require.NoError(t, assign(v.Field(0), 7))
	require.NoError(t, assign(v.Field(1), "x"))
	require.NoError(t, assign(v.Field(2), []any{"a", "b"}))
	require.NoError(t, assign(v.Field(3), map[string]any{"Genres": []any{History}}))
	require.Equal(t, int32(7), dst.Count)
	require.Equal(t, "x", *dst.Name)
	require.Equal(t, []string{"a", "b"}, dst.Tags)
	require.Equal(t, []Genre{History}, dst.Filter.Genres)

	require.Error(t, assign(v.Field(1), 65))
	require.Error(t, assign(v.Field(3), map[string]any{"Missing": 1}))
	require.NoError(t, assign(v.Field(1), nil))
	require.Nil(t, dst.Name)
}

func TestLowerFirst(t *testing.T) {
	for in, want := range map[string]string{
		"Title":   "title",
		"ID":      "id",
		"URLPath": "urlPath",
		"X":       "x",
		"":        "",
	} {
		require.Equal(t, want, lowerFirst(in), in)
	}
}

func TestProviderConcurrentUse(t *testing.T) {
	p := newBookstore().provider
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Properties(p.Class((*Book)(nil)))
			p.ClassOf(&Author{})
		}()
	}
	wg.Wait()
}
