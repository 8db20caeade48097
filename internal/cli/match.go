package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/matching"
	"github.com/nickimizell/property-dashboard-sub000/internal/repository/postgres"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "match [text]",
		Short: "Extract facts from text and resolve them to a property",
		Long:  "Runs fact extraction and the matching strategies against the property store.\nReads the text from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runMatch,
	}
	cmd.Flags().String("subject", "", "Email subject to match with")
	cmd.Flags().String("from", "", "Sender address")
	RootCmd.AddCommand(cmd)
}

func runMatch(cmd *cobra.Command, args []string) {
	subject, _ := cmd.Flags().GetString("subject")
	from, _ := cmd.Flags().GetString("from")

	var body string
	if len(args) == 1 {
		body = args[0]
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		body = string(b)
	}

	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}

	ctx := context.Background()
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		exitErr("database", err)
	}
	defer db.Close()

	email := domain.InboundEmail{From: from, Subject: subject, Text: body, ReceivedAt: time.Now()}
	text := strings.TrimSpace(subject + "\n\n" + body)
	facts := newGateway(ctx, cfg.Oracle, nil).ExtractFacts(ctx, text)

	match := matching.New(postgres.NewPropertyRepo(db), cfg.Matching).FindMatch(ctx, email, facts)
	printJSON(map[string]interface{}{
		"facts": facts,
		"match": match,
	})
}
