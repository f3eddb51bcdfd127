package main

import (
	"os"

	"github.com/debtdesk/caseflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
