package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/repository/postgres"
	"github.com/nickimizell/property-dashboard-sub000/migrations"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Run:   runMigrate,
	}
	cmd.Flags().String("dir", "", "Read migrations from a directory instead of the embedded set")
	cmd.Flags().Bool("list", false, "List applied migrations and exit")
	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	dir, _ := cmd.Flags().GetString("dir")
	list, _ := cmd.Flags().GetBool("list")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		exitErr("database", err)
	}
	defer db.Close()

	if list {
		names, err := postgres.AppliedMigrations(ctx, db)
		if err != nil {
			exitErr("list", err)
		}
		printJSON(names)
		return
	}

	var src fs.FS = migrations.FS
	if dir != "" {
		src = os.DirFS(dir)
	}
	applied, err := postgres.Migrate(ctx, db, src)
	if err != nil {
		exitErr(fmt.Sprintf("migrate (applied before failure: %d)", len(applied)), err)
	}
	printJSON(map[string]interface{}{"applied": applied, "count": len(applied)})
}
