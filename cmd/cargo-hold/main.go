// Command cargo-hold stabilizes cargo's reliance on filesystem mtimes
// across CI cache-restore boundaries.
package main

import (
	"fmt"
	"os"

	"github.com/Ellipsis-Labs/cargo-hold/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
