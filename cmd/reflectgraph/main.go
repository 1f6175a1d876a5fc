// Command reflectgraph serves gRPC services described by a protobuf
// descriptor set as a GraphQL API.
//
//	reflectgraph sdl --descriptors shop.pb --query shop.Books/ListBooks
//	reflectgraph serve --config reflectgraph.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "reflectgraph:", err)
		os.Exit(1)
	}
}
