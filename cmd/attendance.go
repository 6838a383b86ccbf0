package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/ledger"
	"github.com/facein/facein/internal/roster"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Show today's attendance summary",
	RunE:  runAttendanceStats,
}

var attendanceRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List attendance records",
	RunE:  runAttendanceRecords,
}

var attendanceAbsenteesCmd = &cobra.Command{
	Use:   "absentees",
	Short: "List roster members without a record for a day",
	RunE:  runAttendanceAbsentees,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceRecordsCmd)
	attendanceCmd.AddCommand(attendanceAbsenteesCmd)

	attendanceRecordsCmd.Flags().String("from", "", "Start date (YYYY-MM-DD, inclusive)")
	attendanceRecordsCmd.Flags().String("to", "", "End date (YYYY-MM-DD, inclusive)")

	attendanceAbsenteesCmd.Flags().String("date", "", "Day to report (YYYY-MM-DD, default today)")
	attendanceAbsenteesCmd.Flags().String("class", "", "Narrow to one class")
	attendanceAbsenteesCmd.Flags().String("section", "", "Narrow to one section")
	attendanceAbsenteesCmd.Flags().String("house", "", "Narrow to one house")
}

func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	l, err := ledger.Open(cfg.Data.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("opening attendance ledger: %w", err)
	}
	return l, nil
}

func runAttendanceStats(cmd *cobra.Command, args []string) error {
	l, err := openLedger(config.Load())
	if err != nil {
		return err
	}
	st, err := l.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Total records:  %d over %d days\n", st.TotalRecords, st.DistinctDays)
	fmt.Printf("Present today:  %d\n", st.TodayCount)
	for _, name := range st.TodayNames {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func runAttendanceRecords(cmd *cobra.Command, args []string) error {
	filter := ledger.Filter{
		From: mustGetString(cmd, "from"),
		To:   mustGetString(cmd, "to"),
	}
	for _, d := range []string{filter.From, filter.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(ledger.DateFormat, d); err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", d)
		}
	}

	l, err := openLedger(config.Load())
	if err != nil {
		return err
	}
	records, err := l.Records(filter)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No attendance records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTIME\tNAME\tCONFIDENCE\tSTATUS")
	for _, rec := range records {
		confidence := "-"
		if rec.Confidence != nil {
			confidence = fmt.Sprintf("%.3f", *rec.Confidence)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rec.Date, rec.Time, rec.Name, confidence, rec.Status)
	}
	return w.Flush()
}

func runAttendanceAbsentees(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	date := mustGetString(cmd, "date")
	if date == "" {
		date = time.Now().Format(ledger.DateFormat)
	} else if _, err := time.Parse(ledger.DateFormat, date); err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}

	_, r, err := loadState(cfg)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	present, err := l.PresentOn(date)
	if err != nil {
		return err
	}

	absent := r.Absentees(present, roster.Filter{
		Class:   mustGetString(cmd, "class"),
		Section: mustGetString(cmd, "section"),
		House:   mustGetString(cmd, "house"),
	})

	fmt.Printf("%s: %d present, %d absent\n", date, len(present), len(absent))
	if len(absent) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCLASS\tSECTION\tHOUSE")
	for _, m := range absent {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, m.Class, m.Section, m.House)
	}
	return w.Flush()
}
