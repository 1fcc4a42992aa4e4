package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

// DocsCmd browses the knowledge base
func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Browse filed SOP documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every document version, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			docs, err := api.ListDocuments(cmd.Context())
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return printDocuments(cmd.OutOrStdout(), docs, outputJSON)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get PATH",
		Short: "Print a document by its locator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			content, err := api.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"path": args[0], "content": content})
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	})

	return cmd
}

func printDocuments(w io.Writer, docs []Document, outputJSON bool) error {
	if outputJSON {
		if docs == nil {
			docs = []Document{}
		}
		return writeJSON(w, docs)
	}

	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents found.")
		return nil
	}

	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []string{
			d.Company,
			d.Name,
			d.Version,
			d.Date,
			strconv.FormatFloat(d.ProcessingTime, 'f', 2, 64) + "s",
			d.ID,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Company", "Process", "Version", "Date", "Time", "Path"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
