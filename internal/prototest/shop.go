// Package prototest builds the shop descriptors and an in-process backend
// serving them. It is used by tests only.
package prototest

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var (
	shopOnce sync.Once
	shopFile protoreflect.FileDescriptor
)

// Shop returns the descriptor of shop.proto:
//
//	enum Genre { GENRE_UNSPECIFIED = 0; GENRE_FICTION = 1; GENRE_HISTORY = 2; }
//	message Author { string name = 1; }
//	message Book {
//	  string id = 1; string title = 2; Genre genre = 3; Author author = 4;
//	  repeated string tags = 5; optional int32 pages = 6; int64 sales = 7;
//	  map<string, string> meta = 8;
//	}
//	message BookFilter { string title_prefix = 1; repeated Genre genres = 2; }
//	message ListBooksRequest { BookFilter filter = 1; int32 limit = 2; }
//	message ListBooksResponse { repeated Book books = 1; }
//	message GetBookRequest { string id = 1; }
//	message AddBookRequest { string title = 1; Genre genre = 2; }
//	message WatchBooksRequest { int32 count = 1; }
//	service Books {
//	  rpc ListBooks(ListBooksRequest) returns (ListBooksResponse);
//	  rpc GetBook(GetBookRequest) returns (Book);
//	  rpc AddBook(AddBookRequest) returns (Book);
//	  rpc WatchBooks(WatchBooksRequest) returns (stream Book);
//	  rpc ImportBooks(stream Book) returns (ListBooksResponse);
//	}
func Shop() protoreflect.FileDescriptor {
	shopOnce.Do(func() {
		fd, err := buildShop()
		if err != nil {
			panic(err)
		}
		shopFile = fd
	})
	return shopFile
}

func field(number protoreflect.FieldNumber, name protoreflect.Name, t *protobuilder.FieldType) *protobuilder.FieldBuilder {
	return protobuilder.NewField(name, t).SetNumber(number)
}

func str() *protobuilder.FieldType { return protobuilder.FieldTypeScalar(protoreflect.StringKind) }

func buildShop() (protoreflect.FileDescriptor, error) {
	fb := protobuilder.NewFile("shop.proto")
	fb.SetPackageName("shop")
	fb.SetSyntax(protoreflect.Proto3)

	genre := protobuilder.NewEnum("Genre")
	genre.SetComments(protobuilder.Comments{LeadingComment: " Shelf section of a book.\n"})
	for i, name := range []protoreflect.Name{"GENRE_UNSPECIFIED", "GENRE_FICTION", "GENRE_HISTORY"} {
		genre.AddValue(protobuilder.NewEnumValue(name).SetNumber(protoreflect.EnumNumber(i)))
	}

	author := protobuilder.NewMessage("Author").AddField(field(1, "name", str()))

	pages := field(6, "pages", protobuilder.FieldTypeScalar(protoreflect.Int32Kind))
	pages.SetOptional()
	title := field(2, "title", str())
	title.SetComments(protobuilder.Comments{LeadingComment: " Display title.\n"})
	meta := protobuilder.NewMapField("meta", str(), str()).SetNumber(8)
	book := protobuilder.NewMessage("Book").
		AddField(field(1, "id", str())).
		AddField(title).
		AddField(field(3, "genre", protobuilder.FieldTypeEnum(genre))).
		AddField(field(4, "author", protobuilder.FieldTypeMessage(author))).
		AddField(field(5, "tags", str()).SetRepeated()).
		AddField(pages).
		AddField(field(7, "sales", protobuilder.FieldTypeScalar(protoreflect.Int64Kind))).
		AddField(meta)

	filter := protobuilder.NewMessage("BookFilter").
		AddField(field(1, "title_prefix", str())).
		AddField(field(2, "genres", protobuilder.FieldTypeEnum(genre)).SetRepeated())
	listReq := protobuilder.NewMessage("ListBooksRequest").
		AddField(field(1, "filter", protobuilder.FieldTypeMessage(filter))).
		AddField(field(2, "limit", protobuilder.FieldTypeScalar(protoreflect.Int32Kind)))
	listResp := protobuilder.NewMessage("ListBooksResponse").
		AddField(field(1, "books", protobuilder.FieldTypeMessage(book)).SetRepeated())
	getReq := protobuilder.NewMessage("GetBookRequest").AddField(field(1, "id", str()))
	addReq := protobuilder.NewMessage("AddBookRequest").
		AddField(field(1, "title", str())).
		AddField(field(2, "genre", protobuilder.FieldTypeEnum(genre)))
	watchReq := protobuilder.NewMessage("WatchBooksRequest").
		AddField(field(1, "count", protobuilder.FieldTypeScalar(protoreflect.Int32Kind)))

	rpc := protobuilder.RpcTypeMessage
	svc := protobuilder.NewService("Books").
		AddMethod(protobuilder.NewMethod("ListBooks", rpc(listReq, false), rpc(listResp, false))).
		AddMethod(protobuilder.NewMethod("GetBook", rpc(getReq, false), rpc(book, false))).
		AddMethod(protobuilder.NewMethod("AddBook", rpc(addReq, false), rpc(book, false))).
		AddMethod(protobuilder.NewMethod("WatchBooks", rpc(watchReq, false), rpc(book, true))).
		AddMethod(protobuilder.NewMethod("ImportBooks", rpc(book, true), rpc(listResp, false)))

	fb.AddEnum(genre).
		AddMessage(author).AddMessage(book).AddMessage(filter).
		AddMessage(listReq).AddMessage(listResp).AddMessage(getReq).
		AddMessage(addReq).AddMessage(watchReq).
		AddService(svc)
	return fb.Build()
}

// Message returns the descriptor of the shop message with the short name.
func Message(name protoreflect.Name) protoreflect.MessageDescriptor {
	return Shop().Messages().ByName(name)
}

// Method returns a method of shop.Books.
func Method(name protoreflect.Name) protoreflect.MethodDescriptor {
	return Shop().Services().ByName("Books").Methods().ByName(name)
}

// NewBook returns a populated shop.Book.
func NewBook(id, title string, genre protoreflect.EnumNumber) *dynamicpb.Message {
	md := Message("Book")
	b := dynamicpb.NewMessage(md)
	b.Set(md.Fields().ByName("id"), protoreflect.ValueOfString(id))
	b.Set(md.Fields().ByName("title"), protoreflect.ValueOfString(title))
	b.Set(md.Fields().ByName("genre"), protoreflect.ValueOfEnum(genre))
	return b
}

// Books is an in-memory shop.Books backend.
type Books struct {
	mu    sync.Mutex
	books []*dynamicpb.Message
	// Calls counts requests per method name.
	Calls map[string]int
}

func NewBooks() *Books {
	return &Books{
		books: []*dynamicpb.Message{
			NewBook("1", "Dune", 1),
			NewBook("2", "SPQR", 2),
		},
		Calls: map[string]int{},
	}
}

// Serve starts b on an in-memory listener and returns the dial options that
// reach it. The server stops with the test.
func Serve(t testing.TB, b *Books) []grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	b.serve(t, lis)
	return []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

// ServeTCP starts b on a loopback port and returns its address.
func ServeTCP(t testing.TB, b *Books) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b.serve(t, lis)
	return lis.Addr().String()
}

func (b *Books) serve(t testing.TB, lis net.Listener) {
	srv := grpc.NewServer(grpc.UnknownServiceHandler(b.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
}

func (b *Books) handle(_ any, stream grpc.ServerStream) error {
	full, _ := grpc.MethodFromServerStream(stream)
	name := protoreflect.Name(full[strings.LastIndex(full, "/")+1:])
	method := Method(name)
	if method == nil {
		return status.Errorf(codes.Unimplemented, "unknown method %s", full)
	}
	b.mu.Lock()
	b.Calls[string(name)]++
	b.mu.Unlock()

	req := dynamicpb.NewMessage(method.Input())
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	switch name {
	case "ListBooks":
		return stream.SendMsg(b.list(req))
	case "GetBook":
		id := req.Get(method.Input().Fields().ByName("id")).String()
		for _, book := range b.snapshot() {
			if book.Get(book.Descriptor().Fields().ByName("id")).String() == id {
				return stream.SendMsg(book)
			}
		}
		return status.Errorf(codes.NotFound, "book %s not found", id)
	case "AddBook":
		in := method.Input().Fields()
		book := NewBook("", req.Get(in.ByName("title")).String(), req.Get(in.ByName("genre")).Enum())
		b.mu.Lock()
		book.Set(book.Descriptor().Fields().ByName("id"), protoreflect.ValueOfString(strings.Repeat("n", len(b.books)+1)))
		b.books = append(b.books, book)
		b.mu.Unlock()
		return stream.SendMsg(book)
	case "WatchBooks":
		books := b.snapshot()
		n := int(req.Get(method.Input().Fields().ByName("count")).Int())
		for i := 0; i < n; i++ {
			if err := stream.SendMsg(books[i%len(books)]); err != nil {
				return err
			}
		}
		return nil
	}
	return status.Errorf(codes.Unimplemented, "%s is not served", name)
}

func (b *Books) snapshot() []*dynamicpb.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*dynamicpb.Message(nil), b.books...)
}

func (b *Books) list(req *dynamicpb.Message) *dynamicpb.Message {
	in := req.Descriptor().Fields()
	limit := int(req.Get(in.ByName("limit")).Int())
	var prefix string
	var genres map[protoreflect.EnumNumber]bool
	if req.Has(in.ByName("filter")) {
		f := req.Get(in.ByName("filter")).Message()
		ff := f.Descriptor().Fields()
		prefix = f.Get(ff.ByName("title_prefix")).String()
		if list := f.Get(ff.ByName("genres")).List(); list.Len() > 0 {
			genres = map[protoreflect.EnumNumber]bool{}
			for i := 0; i < list.Len(); i++ {
				genres[list.Get(i).Enum()] = true
			}
		}
	}

	md := Message("ListBooksResponse")
	resp := dynamicpb.NewMessage(md)
	out := resp.Mutable(md.Fields().ByName("books")).List()
	for _, book := range b.snapshot() {
		bf := book.Descriptor().Fields()
		if !strings.HasPrefix(book.Get(bf.ByName("title")).String(), prefix) {
			continue
		}
		if genres != nil && !genres[book.Get(bf.ByName("genre")).Enum()] {
			continue
		}
		if limit > 0 && out.Len() >= limit {
			break
		}
		out.Append(protoreflect.ValueOfMessage(book))
	}
	return resp
}
