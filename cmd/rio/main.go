// Command rio runs reversible programs, actor systems and scenarios.
package main

import (
	"os"

	"github.com/roach88/rio/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
