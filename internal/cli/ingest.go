package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/mailsource"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [message.json ...]",
		Short: "Spool the given messages and process one batch",
		Long: "Copies each message file into the mail spool, then runs a single batch and prints\n" +
			"the per-email outcomes. With no files, only the batch runs.",
		Run: runIngest,
	}
	cmd.Flags().Bool("spool-only", false, "Write the messages to the spool without processing")
	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	spoolOnly, _ := cmd.Flags().GetBool("spool-only")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}

	if len(args) > 0 {
		spool := mailsource.NewSpool(cfg.MailSource.SpoolDir)
		for _, path := range args {
			written, err := spoolFile(spool, path)
			if err != nil {
				exitErr("spool "+path, err)
			}
			fmt.Fprintf(os.Stderr, "spooled %s -> %s\n", path, written)
		}
	}
	if spoolOnly {
		return
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
	res, err := a.runner.RunOnce(ctx)
	if err != nil {
		exitErr("batch", err)
	}
	printJSON(res)
}

// spoolFile decodes one message file and drops it into the spool.
func spoolFile(spool *mailsource.Spool, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var email domain.InboundEmail
	if err := json.Unmarshal(data, &email); err != nil {
		return "", fmt.Errorf("decode message: %w", err)
	}
	if email.ExternalID() == "" {
		return "", fmt.Errorf("message has neither id nor uid")
	}
	return spool.Write(email)
}
