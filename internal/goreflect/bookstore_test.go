package goreflect

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"

	"github.com/hanpama/reflectgraph/internal/eventsource"
)

type Genre int

const (
	Fiction Genre = iota + 1
	History
)

func (g Genre) String() string {
	switch g {
	case Fiction:
		return "FICTION"
	case History:
		return "HISTORY"
	}
	return "UNKNOWN"
}

type Node interface {
	Key() string
}

type SearchResult interface {
	isSearchResult()
}

type Audit struct {
	CreatedBy string
}

type Book struct {
	Audit
	sync.Mutex

	Title  string `description:"Title of the book."`
	Genre  Genre
	Pages  *int   `deprecated:"Use length."`
	ISBN   string `graphql:"code"`
	Secret string `graphql:"-"`
	Shelf  string `graphql:",internal"`
	Meta   map[string]string

	notes  string
	writer *Author
}

func (b *Book) Key() string { return "book:" + b.Title }

func (b *Book) Author(ctx context.Context) (*Author, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	return b.writer, nil
}

func (*Book) isSearchResult() {}

type Author struct {
	Name  string
	Books []*Book `graphql:"-"`
}

func (*Author) isSearchResult() {}

type BookFilter struct {
	TitlePrefix *string
	Genres      []Genre
}

type Queries struct {
	mu    sync.Mutex
	books []*Book
}

func (q *Queries) Books(args struct{ Filter *BookFilter }) []*Book {
	q.mu.Lock()
	defer q.mu.Unlock()
	if args.Filter == nil {
		return q.books
	}
	var out []*Book
	for _, b := range q.books {
		if p := args.Filter.TitlePrefix; p != nil && !strings.HasPrefix(b.Title, *p) {
			continue
		}
		if len(args.Filter.Genres) > 0 && !containsGenre(args.Filter.Genres, b.Genre) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func containsGenre(gs []Genre, g Genre) bool {
	for _, x := range gs {
		if x == g {
			return true
		}
	}
	return false
}

func (q *Queries) Node(args struct{ Key string }) (Node, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range q.books {
		if b.Key() == args.Key {
			return b, nil
		}
	}
	return nil, errors.New("not found")
}

func (q *Queries) Search(ctx context.Context, args struct{ Text string }) ([]SearchResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return []SearchResult{q.books[0], &Author{Name: args.Text}}, nil
}

// Reset and Lookup have signatures that cannot be exposed.
func (q *Queries) Reset()                             {}
func (q *Queries) Lookup(m map[string]string) string { return m["key"] }

type Mutations struct {
	queries *Queries
}

func (m *Mutations) AddBook(args struct {
	Title string
	Genre Genre
}) (*Book, error) {
	if args.Title == "" {
		return nil, errors.New("title is required")
	}
	b := &Book{Title: args.Title, Genre: args.Genre}
	m.queries.mu.Lock()
	m.queries.books = append(m.queries.books, b)
	m.queries.mu.Unlock()
	return b, nil
}

type Subscriptions struct {
	added chan *Book
}

func (s *Subscriptions) Alerts() eventsource.PublisherOf[string] {
	return eventsource.Typed[string](eventsource.ToPublisher(eventsource.Of("fire", "flood")))
}

func (s *Subscriptions) BookAdded(ctx context.Context) <-chan *Book { return s.added }

func (s *Subscriptions) Countdown(args struct{ From int }) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := args.From; i > 0; i-- {
			if !yield(i) {
				return
			}
		}
	}
}

type bookstore struct {
	provider      *Provider
	queries       *Queries
	mutations     *Mutations
	subscriptions *Subscriptions
}

func newBookstore() *bookstore {
	frank := &Author{Name: "Frank"}
	queries := &Queries{books: []*Book{
		{Audit: Audit{CreatedBy: "ann"}, Title: "Dune", Genre: Fiction, writer: frank},
		{Audit: Audit{CreatedBy: "bob"}, Title: "SPQR", Genre: History},
	}}

	p := New()
	p.Enum(Fiction, History)
	p.Implement((*Node)(nil), (*Book)(nil))
	p.Implement((*SearchResult)(nil), (*Book)(nil), (*Author)(nil))
	return &bookstore{
		provider:      p,
		queries:       queries,
		mutations:     &Mutations{queries: queries},
		subscriptions: &Subscriptions{added: make(chan *Book, 4)},
	}
}
