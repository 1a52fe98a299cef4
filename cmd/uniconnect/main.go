package main

import (
	"fmt"
	"os"

	"github.com/jeanikt/uniconnect/internal/app"
	"github.com/jeanikt/uniconnect/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "uniconnect: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "uniconnect: %v\n", err)
		os.Exit(1)
	}
}
