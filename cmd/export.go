package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/carcatalog-crawler/internal/config"
	"github.com/JakeFAU/carcatalog-crawler/internal/export"
)

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes every stored record to a Parquet file",
		Long: `Walks the local record store and writes one row per make, model, year,
and trim. Only records.backend=local is supported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if backend := appInstance.Config().Records.Backend; backend != config.BackendLocal {
				return fmt.Errorf("export reads local records only; records.backend is %q", backend)
			}
			records, err := appInstance.LocalRecords()
			if err != nil {
				return err
			}
			n, err := export.WriteFile(cmd.Context(), out, records, appInstance.Logger())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "records.parquet", "output file")
	return cmd
}
