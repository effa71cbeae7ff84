// Command opflow loads an opflow configuration document and serves it.
package main

import (
	"fmt"
	"os"

	"github.com/opflowhq/opflow/cmd/opflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
