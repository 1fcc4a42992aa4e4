package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// AnalyzeCmd uploads evidence files and prints the resulting SOP.
func AnalyzeCmd() *cobra.Command {
	var (
		notes     []string
		notesFile string
		sessionID string
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Turn evidence files into a filed SOP",
		Long: `Uploads recordings, screenshots and documents to the server, which analyzes
them and files the resulting SOP in the knowledge base.

Examples:
  # Analyze a walkthrough with its rate card
  procminer analyze walkthrough.mp4 rates.pdf --note "rates.pdf=2024 rate card"

  # Feed the next chunk of a shadowing session
  procminer analyze chunk-003.webm --session abc123`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseNotes(notes, notesFile)
			if err != nil {
				return err
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			outputJSON, _ := cmd.Flags().GetBool("output")
			var onProgress ProgressFunc
			if !outputJSON && !quiet {
				onProgress = uploadProgress(cmd.ErrOrStderr())
			}

			result, err := api.Analyze(cmd.Context(), AnalyzeInput{
				Files:     args,
				Notes:     parsed,
				SessionID: strings.TrimSpace(sessionID),
			}, onProgress)
			if onProgress != nil {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return fmt.Errorf("analyze failed: %w", err)
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printAnalyzeResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&notes, "note", nil, "Attachment note as FILENAME=TEXT (repeatable)")
	cmd.Flags().StringVar(&notesFile, "notes-file", "", "JSON object mapping filenames to notes")
	cmd.Flags().StringVar(&sessionID, "session", "", "Shadowing session id to merge into")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress upload progress")

	return cmd
}

// parseNotes merges --notes-file with --note flags; flags win on conflict.
// Note keys are matched against uploaded base names, so paths are reduced.
func parseNotes(flags []string, notesFile string) (map[string]string, error) {
	notes := make(map[string]string)

	if notesFile != "" {
		data, err := os.ReadFile(notesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read notes file: %w", err)
		}
		var fromFile map[string]string
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("notes file must be a JSON object of strings: %w", err)
		}
		for k, v := range fromFile {
			notes[filepath.Base(k)] = v
		}
	}

	for _, raw := range flags {
		name, text, ok := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --note %q: expected FILENAME=TEXT", raw)
		}
		notes[filepath.Base(name)] = text
	}

	if len(notes) == 0 {
		return nil, nil
	}
	return notes, nil
}

func uploadProgress(w io.Writer) ProgressFunc {
	lastPct := int64(-1)
	return func(current, total int64) {
		if total <= 0 {
			return
		}
		pct := current * 100 / total
		if pct == lastPct {
			return
		}
		lastPct = pct
		fmt.Fprintf(w, "\rUploading... %3d%%", pct)
	}
}

func printAnalyzeResult(w io.Writer, r *AnalyzeResult) {
	if r.Metadata != nil {
		fmt.Fprintf(w, "Company: %s\nProcess: %s\n", r.Metadata.CompanyName, r.Metadata.ProcessName)
	}
	fmt.Fprintf(w, "Status:  %s\n", r.Status)
	if loc := r.Locator(); loc != "" {
		fmt.Fprintf(w, "Path:    %s\n", loc)
	}
	fmt.Fprintf(w, "Time:    %.2fs\n\n", r.ProcessingTime)
	fmt.Fprintln(w, r.SOP)
}
