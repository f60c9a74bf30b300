// Command pharmguard runs the pharmacogenomic pipeline from the terminal and
// registers the MCP server with desktop clients.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
