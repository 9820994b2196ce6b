package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/NoaSkape/firefly-estimator-sub005/analytics"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/spf13/cobra"
)

var (
	flagMonths  int
	flagHorizon int
	flagTop     int
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Project monthly revenue from order history",
	RunE:  withEnv(runForecast),
}

var clvCmd = &cobra.Command{
	Use:   "clv",
	Short: "List the most valuable customers with their RFM segment",
	RunE:  withEnv(runCLV),
}

func init() {
	forecastCmd.Flags().IntVar(&flagMonths, "months", 24, "Complete months of history to fit")
	forecastCmd.Flags().IntVar(&flagHorizon, "horizon", 6, "Months to project")
	clvCmd.Flags().IntVar(&flagTop, "top", 20, "Number of customers to list")
	rootCmd.AddCommand(forecastCmd, clvCmd)
}

func analyticsService(e *env) services.AnalyticsService {
	return services.NewAnalyticsService(
		repository.NewMongoOrderRepository(e.db),
		repository.NewMongoTrackingRepository(e.db),
		services.AnalyticsConfig{Timezone: e.cfg.AnalyticsTimezone, LifespanYears: e.cfg.CLVLifespanYears},
		e.log,
	)
}

func runForecast(ctx context.Context, e *env, out io.Writer) error {
	res, appErr := analyticsService(e).Forecast(ctx, flagMonths, flagHorizon)
	if appErr != nil {
		return errors.New(appErr.Message)
	}
	if flagJSON {
		return printJSON(out, res)
	}
	writeForecast(out, res)
	return nil
}

func writeForecast(out io.Writer, res *analytics.ForecastResult) {
	fmt.Fprintf(out, "Trend %s/month, R² %.3f, seasonal=%t\n\n", dollars(res.Slope), res.RSquared, res.Seasonal)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Month\tOrders\tRevenue\t")
	for _, p := range res.History {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", p.Month, p.Orders, dollars(float64(p.Revenue)))
	}
	fmt.Fprintln(tw, "\t\t\t")
	fmt.Fprintln(tw, "Month\tLow\tForecast\tHigh\t")
	for _, p := range res.Points {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", p.Month, dollars(p.Lower), dollars(p.Revenue), dollars(p.Upper))
	}
	_ = tw.Flush()
}

func runCLV(ctx context.Context, e *env, out io.Writer) error {
	list, appErr := analyticsService(e).CustomerValues(ctx, flagTop)
	if appErr != nil {
		return errors.New(appErr.Message)
	}
	if flagJSON {
		return printJSON(out, list)
	}
	writeCLV(out, list)
	return nil
}

func writeCLV(out io.Writer, list []analytics.SegmentedCustomer) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No customers with orders.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Customer\tOrders\tRevenue\tPredicted CLV\tRFM\tSegment")
	for _, c := range list {
		name := c.Name
		if name == "" {
			name = c.UserID
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", name, c.Orders, dollars(float64(c.Revenue)), dollars(c.PredictedCLV), c.Score, c.Segment)
	}
	_ = tw.Flush()
}
