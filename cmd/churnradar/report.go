package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ignite/churn-radar/internal/activation"
	"github.com/ignite/churn-radar/internal/pipeline"
)

// printReport writes the cohort table, the ROI waterfall and any
// diagnostics.
func printReport(w io.Writer, res *pipeline.Result) {
	pr := message.NewPrinter(language.English)

	pr.Fprintf(w, "\nRun %s  (%d rows, %d active)\n\n", res.RunID, res.Summary.RowsOut, res.ActiveCustomers)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "COHORT\tARCHETYPE\tSIZE\tSCORE\tVALUE\tRECENCY\tTENURE\t")
	for _, c := range res.Primary {
		pr.Fprintf(tw, "%s\t%s\t%d\t%.3f\t%.3f\t%.1f\t%.1f\t\n",
			c.Name, activation.ArchetypeOf(c), c.Size, c.MeanScore, c.MeanValue, c.MeanRecency, c.MeanTenure)
	}
	tw.Flush()
	pr.Fprintf(w, "\n%d micro-cohorts\n", len(res.Micro))

	if res.ROI == nil {
		fmt.Fprintf(w, "\nROI unavailable: %s\n", res.ROIError)
	} else {
		wf := res.ROI.Waterfall
		fmt.Fprintln(w, "\nROI waterfall (ready cohorts)")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		rows := []struct {
			label string
			value float64
		}{
			{"Expected revenue", wf.ExpectedRevenue},
			{"Gross profit", wf.GrossProfit},
			{"Sending cost", -wf.SendingCost},
			{"Incentive cost", -wf.IncentiveCost},
			{"Net profit", wf.NetProfit},
		}
		pr.Fprintf(tw, "  Cohorts / customers\t%d / %d\t\n", wf.Cohorts, wf.Customers)
		pr.Fprintf(tw, "  Expected reactivated\t%d\t\n", wf.ExpectedReactivated)
		for _, r := range rows {
			pr.Fprintf(tw, "  %s\t%.2f\t\n", r.label, r.value)
		}
		pr.Fprintf(tw, "  ROMI\t%.2f\t\n", wf.ROMI)
		tw.Flush()
	}

	if len(res.Diagnostics) > 0 {
		fmt.Fprintln(w, "\nDiagnostics")
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "  [%s] %s: %s\n", d.Stage, d.Code, d.Message)
		}
	}
	fmt.Fprintln(w)
}
