package main

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/questscript/pkg/trigger"
)

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// report collects the findings for one trigger file.
type report struct {
	File     string
	Triggers int
	Errors   []string
	Warnings []string
}

func (r *report) ok(strict bool) bool {
	return len(r.Errors) == 0 && (!strict || len(r.Warnings) == 0)
}

func validateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Check trigger files for parse errors and naming problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			reports := validateFiles(files)
			failed := printReports(cmd.OutOrStdout(), reports, strict)
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(reports))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func isTriggerFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// collectFiles expands directories into the trigger files below them.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if path == arg || isTriggerFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func validateFiles(files []string) []*report {
	// Skipped entries are reported per file, so the loader stays quiet.
	loader := trigger.NewLoader(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	seen := make(map[string]string)

	reports := make([]*report, 0, len(files))
	for _, file := range files {
		r := &report{File: file}
		reports = append(reports, r)

		set, err := loader.LoadFile(file)
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
			continue
		}
		r.Triggers = len(set.Triggers)
		for _, skipped := range set.Skipped {
			r.Errors = append(r.Errors, skipped.Error())
		}
		for _, t := range set.Triggers {
			if !validIDRegex.MatchString(t.ID) {
				r.Warnings = append(r.Warnings, fmt.Sprintf("trigger ID '%s' should be lowercase snake_case", t.ID))
			}
			if len(t.Actions) == 0 {
				r.Warnings = append(r.Warnings, fmt.Sprintf("trigger %s has no actions", t.ID))
			}
			if prev, dup := seen[t.ID]; dup {
				r.Warnings = append(r.Warnings, fmt.Sprintf("trigger %s is also defined in %s", t.ID, prev))
			} else {
				seen[t.ID] = file
			}
		}
	}
	return reports
}

// printReports writes one block per file and returns how many failed.
func printReports(w io.Writer, reports []*report, strict bool) int {
	failed := 0
	for _, r := range reports {
		status := okStyle.Render("ok")
		if !r.ok(strict) {
			status = errorStyle.Render("FAIL")
			failed++
		}
		fmt.Fprintf(w, "%s %s %s\n", status, titleStyle.Render(r.File), detailStyle.Render(fmt.Sprintf("(%d triggers)", r.Triggers)))
		for _, msg := range r.Errors {
			fmt.Fprintln(w, errorStyle.Render(bullet(msg)))
		}
		for _, msg := range r.Warnings {
			fmt.Fprintln(w, warnStyle.Render(bullet(msg)))
		}
	}
	return failed
}
