// Command clipkeeper syncs the local clip store with a mirror and imports
// legacy snapshots.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/clipkeeper/internal/client/cli"
)

func main() {
	if err := cli.Execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
