// Command vectl administers a ledger store directly, without the HTTP server.
package main

import (
	"os"
)

func main() {
	if err := execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
