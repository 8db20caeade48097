package main

import (
	"os"

	"github.com/nickimizell/property-dashboard-sub000/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
