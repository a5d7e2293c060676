package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	service "github.com/okian/presence/internal/app"
	"github.com/okian/presence/internal/domain/model"
)

func newReportCmd(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print attendance, for one day or everything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, res, err := service.Build(ctx, *c.cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			var d *string
			if cmd.Flags().Changed("date") {
				d = &date
			}
			recs, err := svc.Report(ctx, d)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report, YYYY-MM-DD")
	return cmd
}

func printReport(out io.Writer, recs []model.AttendanceRecord) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDATE\tTIME\tSTATUS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.IdentityID, r.DisplayName, r.Date, r.Time, r.Status)
	}
	return tw.Flush()
}
