package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"facette.io/natsort"
	"github.com/amp-labs/e2e-harness/attemptlog"
	"github.com/amp-labs/e2e-harness/config"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

type flags struct {
	log    string
	json   bool
	failed bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "attempts",
		Short:         "Inspect the retry attempt log",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(out)
	root.PersistentFlags().StringVar(&f.log, "log", "",
		"attempt log to read (default: E2E_ATTEMPT_LOG, the E2E_CONFIG file, or "+attemptlog.DefaultPath+")")
	root.PersistentFlags().BoolVarP(&f.json, "json", "j", false, "print JSON instead of text")

	root.AddCommand(newSummaryCmd(f), newListCmd(f))

	return root
}

func newSummaryCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show how many tests were retried and how many of those recovered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := load(f)
			if err != nil {
				return err
			}

			summary := attemptlog.Summarize(entries)

			if f.json {
				return writeJSON(cmd.OutOrStdout(), summary)
			}

			return writeSummary(cmd.OutOrStdout(), summary)
		},
	}
}

func newListCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every attempt, grouped by test in natural order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := load(f)
			if err != nil {
				return err
			}

			if f.failed {
				entries = failedOnly(entries)
			}

			entries = sortByTest(entries)

			if f.json {
				return writeJSON(cmd.OutOrStdout(), entries)
			}

			return writeList(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().BoolVar(&f.failed, "failed", false, "only show failed attempts")

	return cmd
}

func logPath(f *flags) (string, error) {
	if f.log != "" {
		return f.log, nil
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return "", err
	}

	return cfg.AttemptLog, nil
}

func load(f *flags) ([]attemptlog.Entry, error) {
	path, err := logPath(f)
	if err != nil {
		return nil, err
	}

	return attemptlog.Read(path)
}

func failedOnly(entries []attemptlog.Entry) []attemptlog.Entry {
	out := make([]attemptlog.Entry, 0, len(entries))

	for _, e := range entries {
		if !e.Success {
			out = append(out, e)
		}
	}

	return out
}

func testName(class, method string) string {
	return class + "." + method
}

// sortByTest groups entries by test, tests in natural order ("case_2" before
// "case_10"), keeping file order within a test.
func sortByTest(entries []attemptlog.Entry) []attemptlog.Entry {
	groups := make(map[string][]attemptlog.Entry)

	var names []string

	for _, e := range entries {
		name := testName(e.Class, e.Method)
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}

		groups[name] = append(groups[name], e)
	}

	natsort.Sort(names)

	out := make([]attemptlog.Entry, 0, len(entries))
	for _, name := range names {
		out = append(out, groups[name]...)
	}

	return out
}

func sortedRefs(refs []attemptlog.TestRef) []string {
	names := make([]string, 0, len(refs))
	attempts := make(map[string]int, len(refs))

	for _, r := range refs {
		name := testName(r.Class, r.Method)
		if _, ok := attempts[name]; !ok {
			names = append(names, name)
		}

		attempts[name] = max(attempts[name], r.Attempts)
	}

	natsort.Sort(names)

	out := make([]string, len(names))
	for i, name := range names {
		out[i] = fmt.Sprintf("%s (%d attempts)", name, attempts[name])
	}

	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func writeSummary(w io.Writer, s attemptlog.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd

	fmt.Fprintf(tw, "Tests:\t%d\n", s.Tests)
	fmt.Fprintf(tw, "Attempts:\t%d\n", s.Attempts)
	fmt.Fprintf(tw, "Failed attempts:\t%d\n", s.Failures)
	fmt.Fprintf(tw, "Retried tests:\t%d\n", s.Retried)
	fmt.Fprintf(tw, "Recovered tests:\t%d\n", s.Recovered)
	fmt.Fprintf(tw, "Recovery rate:\t%.2f%%\n", s.RecoveryRate)

	if err := tw.Flush(); err != nil {
		return err
	}

	for _, section := range []struct {
		title string
		refs  []attemptlog.TestRef
	}{
		{"Flaky passes", s.FlakyPasses},
		{"Final failures", s.FinalFailures},
	} {
		if len(section.refs) == 0 {
			continue
		}

		fmt.Fprintf(w, "\n%s:\n", section.title)

		for _, line := range sortedRefs(section.refs) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}

	return nil
}

func writeList(w io.Writer, entries []attemptlog.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd

	fmt.Fprintln(tw, "TEST\tATTEMPT\tRESULT\tERROR\tTIME")

	for _, e := range entries {
		result, errType := "passed", "-"
		if !e.Success {
			result = "failed"

			if e.ErrorType != nil {
				errType = *e.ErrorType
			}
		}

		fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%s\t%s\n",
			testName(e.Class, e.Method), e.Attempt, e.MaxRetries+1,
			result, errType, e.Timestamp.Format("2006-01-02T15:04:05Z"))
	}

	return tw.Flush()
}
