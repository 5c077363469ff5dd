// Command drivesearch indexes a user's Google Drive text files into a Qdrant
// collection and answers natural-language searches over them. It runs as an
// HTTP API (`drivesearch serve`) or as one-shot CLI commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/drivesearch-go/cmd/drivesearch/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
