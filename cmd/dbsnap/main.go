package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/env"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/cli"
)

func main() {
	osEnvs, err := env.FromOs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load envs: %s\n", err)
		os.Exit(1)
	}

	// Run command
	cmd := cli.NewRootCommand(os.Stdout, os.Stderr, osEnvs, afero.NewOsFs())
	os.Exit(cmd.Execute(context.Background(), os.Args[1:]))
}
