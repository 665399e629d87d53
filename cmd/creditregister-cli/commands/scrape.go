package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"studentscorner-backend/internal/batch"
	"studentscorner-backend/internal/components/configutil"
	"studentscorner-backend/internal/components/telemetry"
	"studentscorner-backend/internal/scrapers/studentscorner"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	scrapeFormat  *string
	scrapeWorkers *int
	scrapeTimeout *time.Duration
	scrapeBaseUrl *string
)

func init() {
	scrapeFormat = scrapeCmd.Flags().String("format", "table", "Output format, either table or json.")
	scrapeWorkers = scrapeCmd.Flags().Int("workers", batch.DefaultWorkers, "Maximum number of accounts scraped at once.")
	scrapeTimeout = scrapeCmd.Flags().Duration("timeout", batch.DefaultTaskTimeout, "Time allowed for a single account.")
	scrapeBaseUrl = scrapeCmd.Flags().String("base-url", studentscorner.DefaultBaseUrl, "Base url of the portal.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <accounts.json5> [--format table|json] [--workers <n>] [--timeout <duration>]",
	Short: "Scrapes the credit register of every account listed in a json5 file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if *scrapeFormat != "table" && *scrapeFormat != "json" {
			return fmt.Errorf("unknown format %q", *scrapeFormat)
		}

		accounts, err := configutil.ReadConfig[[]studentscorner.Account](args[0])
		if err != nil {
			return fmt.Errorf("read accounts: %w", err)
		}
		err = validateAccounts(accounts)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		slog.Info("scraping accounts", "count", len(accounts), "workers", *scrapeWorkers)

		var tel telemetry.API = telemetry.SlogAPI{}
		portal := studentscorner.NewPortal(studentscorner.ClientOptions{
			BaseUrl: *scrapeBaseUrl,
		}, tel)
		coordinator := batch.NewCoordinator(portal, batch.Options{
			Workers:     *scrapeWorkers,
			TaskTimeout: *scrapeTimeout,
		}, tel)

		s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = fmt.Sprintf(" scraping %d accounts...", len(accounts))
		if !*verbose {
			s.Start()
		}
		start := time.Now()
		results := coordinator.Run(cmd.Context(), accounts)
		s.Stop()

		slog.Info("scraping time", "seconds", time.Since(start).Seconds())

		if *scrapeFormat == "json" {
			return writeJson(os.Stdout, results)
		}
		writeTable(os.Stdout, results)
		return nil
	},
}

func validateAccounts(accounts []studentscorner.Account) error {
	for i, acc := range accounts {
		err := acc.Validate()
		if err != nil {
			return fmt.Errorf("account %d: %w", i, err)
		}
	}
	return nil
}

func writeJson(w io.Writer, results []batch.ScrapeResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

func formatFloat(value *float64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}

func formatString(value *string) string {
	if value == nil {
		return "-"
	}
	return *value
}

func writeTable(w io.Writer, results []batch.ScrapeResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Roll number", "Name", "Status", "Semesters", "Subjects", "Credits", "CGPA", "Error"})

	for _, res := range results {
		subjects := 0
		for _, sem := range res.Semesters {
			subjects += len(sem.Subjects)
		}
		t.AppendRow(table.Row{
			formatString(res.Student.RollNumber),
			formatString(res.Student.Name),
			res.Status,
			len(res.Semesters),
			subjects,
			fmt.Sprintf("%s / %s", formatFloat(res.Overall.SecuredCredits), formatFloat(res.Overall.TotalCredits)),
			formatFloat(res.Overall.CGPA),
			formatString(res.Error),
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
