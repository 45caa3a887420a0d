package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect stored transcriptions",
	Long: `Inspect the transcription records under the configured data dir.

These commands open the record database directly, so run them against a
stopped server or a copy of the data dir.

Examples:
  scribed records list --limit 20
  scribed records get 8b1c0f2a
  scribed records delete 8b1c0f2a`,
}

var recordsListLimit int

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent transcriptions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		recs, err := st.List(cmd.Context(), recordsListLimit)
		if err != nil {
			return err
		}

		switch formatOutput {
		case "json":
			return printJSON(recs)
		case "yaml":
			return printYAML(recs)
		}

		if len(recs) == 0 {
			fmt.Println("No transcriptions found.")
			return nil
		}
		w := newTabWriter()
		fmt.Fprintln(w, "ID\tCREATED\tENGINE\tDURATION\tTEXT")
		for _, rec := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rec.ID,
				rec.CreatedAt.Local().Format(time.DateTime),
				rec.Engine,
				time.Duration(rec.DurationMS)*time.Millisecond,
				summarizeText(rec.Text))
		}
		w.Flush()
		fmt.Printf("(%d items)\n", len(recs))
		return nil
	},
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get one transcription by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		rec, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if formatOutput == "json" {
			return printJSON(rec)
		}
		// default: yaml
		return printYAML(rec)
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transcription by ID",
	Long: `Delete a transcription record. The archived WAV, if any, is left
in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		if err := st.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}

		if formatOutput == "json" {
			return printJSON(map[string]any{"id": args[0], "status": "deleted"})
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// summarizeText flattens and truncates transcript text for table output.
func summarizeText(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) > 40 {
		return string(runes[:40]) + "..."
	}
	return text
}

func init() {
	recordsListCmd.Flags().IntVar(&recordsListLimit, "limit", 20, "max records to return")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsGetCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
	rootCmd.AddCommand(recordsCmd)
}
