package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/nickimizell/property-dashboard-sub000/internal/extraction"
	"github.com/nickimizell/property-dashboard-sub000/internal/oracle"
	"github.com/nickimizell/property-dashboard-sub000/internal/splitter"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract and split one local document",
		Args:  cobra.ExactArgs(1),
		Run:   runExtract,
	}
	cmd.Flags().String("mime", "", "Declared MIME type (default: sniffed from the content)")
	cmd.Flags().Bool("text", false, "Include the extracted text in the output")
	cmd.Flags().Bool("no-oracle", false, "Split with the local rules only")
	RootCmd.AddCommand(cmd)
}

func runExtract(cmd *cobra.Command, args []string) {
	declared, _ := cmd.Flags().GetString("mime")
	withText, _ := cmd.Flags().GetBool("text")
	noOracle, _ := cmd.Flags().GetBool("no-oracle")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		exitErr("read", err)
	}
	filename := filepath.Base(args[0])
	mimeType := extraction.NormalizeMIME(data, declared, filename)

	var gw *oracle.Gateway
	if !noOracle {
		gw = newGateway(context.Background(), cfg.Oracle, nil)
	}
	res := newSplitter(cfg, gw).Extract(context.Background(), data, mimeType, filename)
	printJSON(extractOutput(res, mimeType, withText))
}

// extractOutput drops the text bodies unless they were asked for.
func extractOutput(res splitter.Result, mimeType string, withText bool) map[string]interface{} {
	if !withText {
		res.Text = ""
		for i := range res.Documents {
			res.Documents[i].Text = ""
		}
	}
	return map[string]interface{}{
		"mime_type": mimeType,
		"result":    res,
	}
}
