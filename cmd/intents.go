package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/intent"
)

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List the registered discovery intents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		registry, err := intent.LoadRegistry(cfg.Intents.Path)
		if err != nil {
			return err
		}

		intents := registry.All()
		if len(intents) == 0 {
			fmt.Fprintln(os.Stderr, "No intents registered.")
			return nil
		}

		formatIntentsList(os.Stdout, intents)
		return nil
	},
}

func formatIntentsList(out io.Writer, intents []intent.Intent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tCHANNELS\tQUERIES\tMAX_COMPANIES\tMAX_LEADS")
	for _, it := range intents {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			it.ID, it.Name, it.Category, strings.Join(it.Channels, ","),
			len(it.Queries), it.Limits.MaxCompanies, it.Limits.MaxLeads)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(intentsCmd)
}
