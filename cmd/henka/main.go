// Command henka applies, reverts and inspects SQL migrations of a MySQL or
// SQLite database.
//
// Every flag can also be set in a YAML config file passed with --config or
// with a HENKA_ prefixed environment variable, e.g. HENKA_DSN.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
