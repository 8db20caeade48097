package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the record store, oracle and mail source",
		Run:   runValidate,
	})
}

func runValidate(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		exitErr("startup", err)
	}
	defer a.Close()

	if err := a.runner.Validate(ctx); err != nil {
		exitErr("validate", err)
	}
	fmt.Println("ok")
}
