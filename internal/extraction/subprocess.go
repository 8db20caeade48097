package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CommandRunner executes an external program with stdin and returns stdout.
// A non-zero exit is an error.
type CommandRunner func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// ExecRunner runs commands with os/exec under ctx.
func ExecRunner(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// alternateOutput is the JSON document the alternate extractor prints.
type alternateOutput struct {
	Success    bool   `json:"success"`
	TotalPages int    `json:"total_pages"`
	TotalText  string `json:"total_text"`
	Pages      []struct {
		PageNumber int    `json:"page_number"`
		Text       string `json:"text"`
	} `json:"pages"`
	Metadata map[string]any `json:"metadata"`
	Error    string         `json:"error"`
}

// Alternate runs an out-of-process PDF text extractor that reads the file
// on stdin and prints alternateOutput on stdout.
type Alternate struct {
	command string
	args    []string
	run     CommandRunner
}

// NewAlternate configures the subprocess. A nil runner uses ExecRunner.
func NewAlternate(command string, args []string, run CommandRunner) *Alternate {
	if run == nil {
		run = ExecRunner
	}
	return &Alternate{command: command, args: args, run: run}
}

// Name implements Parser.
func (a *Alternate) Name() Method { return MethodAlternate }

// Supports implements Parser.
func (a *Alternate) Supports(mimeType string) bool { return IsPDF(mimeType) }

// Parse implements Parser. Non-zero exits, unsuccessful runs and malformed
// output all come back as errors.
func (a *Alternate) Parse(ctx context.Context, data []byte, _ string) ([]string, map[string]string, error) {
	out, err := a.run(ctx, a.command, a.args, data)
	if err != nil {
		return nil, nil, err
	}

	var doc alternateOutput
	if err := json.Unmarshal(bytes.TrimSpace(out), &doc); err != nil {
		return nil, nil, fmt.Errorf("alternate extractor: malformed output: %w", err)
	}
	if !doc.Success {
		if doc.Error == "" {
			doc.Error = "unsuccessful"
		}
		return nil, nil, errors.New("alternate extractor: " + doc.Error)
	}

	var pages []string
	if len(doc.Pages) > 0 {
		pages = make([]string, 0, len(doc.Pages))
		for _, p := range doc.Pages {
			pages = append(pages, p.Text)
		}
	} else {
		pages = SplitPages(doc.TotalText)
	}

	meta := map[string]string{"parser": a.command}
	if doc.TotalPages > 0 {
		meta["page_count"] = strconv.Itoa(doc.TotalPages)
	}
	for k, v := range doc.Metadata {
		if v != nil {
			meta[k] = fmt.Sprint(v)
		}
	}
	return pages, meta, nil
}
