package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/questscript/pkg/luascript"
	"github.com/jwebster45206/questscript/pkg/resolvers"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/state"
	"github.com/jwebster45206/questscript/pkg/trigger"
)

// pendingScheduler records deferred actions instead of queueing them; the
// CLI has no clock to run them against.
type pendingScheduler struct {
	actions []string
}

func (s *pendingScheduler) ScheduleEvent(_ context.Context, m *script.Microscript, domain script.TimeDomain, amount float64, absolute bool) error {
	when := fmt.Sprintf("+%v", amount)
	if absolute {
		when = fmt.Sprintf("at %v", amount)
	}
	s.actions = append(s.actions, fmt.Sprintf("%s (%s %s)", m, domain, when))
	return nil
}

type runOptions struct {
	statePath  string
	scriptsDir string
	write      bool
	verbose    bool
}

func runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <trigger-file>",
		Short: "Fire a trigger file against a local game state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTriggers(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.statePath, "state", "", "Game state JSON file (default: empty state)")
	cmd.Flags().StringVar(&opts.scriptsDir, "scripts", "", "Directory of Lua scripts for exec nodes")
	cmd.Flags().BoolVar(&opts.write, "write", false, "Write the resulting state back to --state")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log resolver and script activity")
	return cmd
}

func loadState(path string) (*state.GameState, error) {
	if path == "" {
		return state.NewGameState(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.NewGameState(), nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	gs := state.NewGameState()
	if err := json.Unmarshal(data, gs); err != nil {
		return nil, fmt.Errorf("failed to parse state %s: %w", path, err)
	}
	return gs, nil
}

func runTriggers(ctx context.Context, w io.Writer, file string, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.write && opts.statePath == "" {
		return fmt.Errorf("--write requires --state")
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	set, err := trigger.NewLoader(nil, logger).LoadFile(file)
	if err != nil {
		return err
	}
	gs, err := loadState(opts.statePath)
	if err != nil {
		return err
	}

	reg := resolvers.Base(logger)
	reg.Verbose = opts.verbose
	env := gs.Env(logger)
	env.Resolvers = reg
	pending := &pendingScheduler{}
	env.Scheduler = pending
	if opts.scriptsDir != "" {
		runner := luascript.New(logger)
		if err := runner.LoadDir(opts.scriptsDir); err != nil {
			return err
		}
		env.Scripts = runner.Bind(env)
	}

	fired, fireErr := set.Cascade(ctx, env)

	fmt.Fprintln(w, titleStyle.Render("Fired"))
	if len(fired) == 0 {
		fmt.Fprintln(w, detailStyle.Render("  (none)"))
	}
	for _, id := range fired {
		fmt.Fprintln(w, okStyle.Render(bullet(id)))
	}
	if len(pending.actions) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Deferred"))
		for _, a := range pending.actions {
			fmt.Fprintln(w, warnStyle.Render(bullet(a)))
		}
	}
	if len(set.Skipped) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Skipped"))
		for _, err := range set.Skipped {
			fmt.Fprintln(w, errorStyle.Render(bullet(err.Error())))
		}
	}
	if fireErr != nil {
		return fireErr
	}

	out, err := json.MarshalIndent(gs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if opts.write {
		return os.WriteFile(opts.statePath, append(out, '\n'), 0o644)
	}
	fmt.Fprintln(w, titleStyle.Render("State"))
	fmt.Fprintln(w, strings.TrimSpace(string(out)))
	return nil
}
