package main

import (
	"fmt"
	"os"

	"marketplace-service/cmd/plumbctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
