/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/dawnchorus/internal/conflict"
	"github.com/friendsincode/dawnchorus/internal/db"
	"github.com/friendsincode/dawnchorus/internal/library"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/friendsincode/dawnchorus/internal/tasks"
)

// taskFlags holds the definition flags shared by create, update and conflicts.
type taskFlags struct {
	name     string
	at       string
	repeat   string
	days     string
	playlist int64
	volume   int
	fadeIn   int
	duration int
	disabled bool
	priority int
}

func (f *taskFlags) register(cmd *cobra.Command, full bool) {
	cmd.Flags().StringVar(&f.at, "at", "", "Local time to fire, HH:MM (required)")
	cmd.Flags().StringVar(&f.repeat, "repeat", string(models.RepeatDaily), "Repeat mode: daily, weekday, weekend, custom or once")
	cmd.Flags().StringVar(&f.days, "days", "", "Comma separated weekdays for custom mode, 0=Sunday")
	cmd.Flags().Int64Var(&f.playlist, "playlist", 0, "Playlist ID (required)")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "Playback window in minutes (0 = playlist length)")
	_ = cmd.MarkFlagRequired("at")
	_ = cmd.MarkFlagRequired("playlist")
	if !full {
		f.volume = -1
		return
	}
	cmd.Flags().StringVar(&f.name, "name", "", "Task name (required)")
	cmd.Flags().IntVar(&f.volume, "volume", -1, "Volume 0-100 (default from DAWN_DEFAULT_VOLUME)")
	cmd.Flags().IntVar(&f.fadeIn, "fade-in", 0, "Fade-in duration in seconds")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "Create the task disabled")
	cmd.Flags().IntVar(&f.priority, "priority", 0, "Priority (informational)")
	_ = cmd.MarkFlagRequired("name")
}

func (f *taskFlags) input() (tasks.Input, error) {
	hour, minute, err := parseClock(f.at)
	if err != nil {
		return tasks.Input{}, err
	}
	days, err := parseDays(f.days)
	if err != nil {
		return tasks.Input{}, err
	}
	in := tasks.Input{
		Name:          f.name,
		Hour:          hour,
		Minute:        minute,
		RepeatMode:    models.RepeatMode(f.repeat),
		CustomDays:    days,
		PlaylistID:    f.playlist,
		FadeInSeconds: f.fadeIn,
		Priority:      f.priority,
	}
	if f.volume >= 0 {
		v := f.volume
		in.Volume = &v
	}
	if f.duration > 0 {
		d := f.duration
		in.DurationMinutes = &d
	}
	enabled := !f.disabled
	in.IsEnabled = &enabled
	return in, nil
}

var (
	createFlags   taskFlags
	updateFlags   taskFlags
	conflictFlags taskFlags
	conflictSkip  int64
	historyLimit  int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage scheduled tasks",
	Long: `Manage scheduled tasks directly in the database.

A running server picks up changes on its next poll.

Examples:
  dawnchorus tasks create --name "Weekday wake" --at 06:45 --repeat weekday --playlist 1 --fade-in 60
  dawnchorus tasks conflicts --at 06:50 --playlist 2
  dawnchorus tasks export > tasks.yaml
`,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks with their next firing time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
			rows, err := svc.List(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), rows)
		})
	},
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := createFlags.input()
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
			conflicts, err := svc.CheckConflicts(cmd.Context(), in, nil)
			if err != nil {
				return err
			}
			task, err := svc.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created task %d\n", task.ID)
			printConflicts(cmd.ErrOrStderr(), conflicts)
			return nil
		})
	},
}

var tasksUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace the definition of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		in, err := updateFlags.input()
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
			if _, err := svc.Update(cmd.Context(), id, in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated task %d\n", id)
			return nil
		})
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
			return svc.Delete(cmd.Context(), id)
		})
	},
}

func toggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
				return svc.SetEnabled(cmd.Context(), id, enabled)
			})
		},
	}
}

var tasksConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List enabled tasks that would overlap a proposed task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := conflictFlags.input()
		if err != nil {
			return err
		}
		var excluding *int64
		if conflictSkip > 0 {
			excluding = &conflictSkip
		}
		return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
			found, err := svc.CheckConflicts(cmd.Context(), in, excluding)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no conflicts")
				return nil
			}
			printConflicts(cmd.OutOrStdout(), found)
			return nil
		})
	},
}

var tasksHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show recent executions of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
			rows, err := svc.History(cmd.Context(), id, historyLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSTATUS\tDURATION\tERROR")
			for _, row := range rows {
				duration := "-"
				if row.Duration != nil {
					duration = (time.Duration(*row.Duration) * time.Second).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.ExecutionTime.Format(time.DateTime), row.Status, duration, row.Error)
			}
			return w.Flush()
		})
	},
}

var tasksExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every task as YAML to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
			return svc.Export(cmd.Context(), cmd.OutOrStdout())
		})
	},
}

var tasksImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create tasks from a YAML export (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		return withServices(cmd.Context(), func(svc *tasks.Service, _ *library.Service, _ *store.Store) error {
			res, err := svc.Import(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d task(s)\n", res.Created)
			for _, name := range res.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %q: playlist not found\n", name)
			}
			return nil
		})
	},
}

func init() {
	createFlags.register(tasksCreateCmd, true)
	updateFlags.register(tasksUpdateCmd, true)
	conflictFlags.register(tasksConflictsCmd, false)
	tasksConflictsCmd.Flags().Int64Var(&conflictSkip, "excluding", 0, "Task ID to ignore, when checking an edit")
	tasksHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of rows to show")

	tasksCmd.AddCommand(
		tasksListCmd,
		tasksCreateCmd,
		tasksUpdateCmd,
		tasksDeleteCmd,
		toggleCmd("enable", true),
		toggleCmd("disable", false),
		tasksConflictsCmd,
		tasksHistoryCmd,
		tasksExportCmd,
		tasksImportCmd,
	)
	rootCmd.AddCommand(tasksCmd)
}

// withServices opens the database, runs fn and closes it again.
func withServices(ctx context.Context, fn func(*tasks.Service, *library.Service, *store.Store) error) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close(database) }()
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	st := store.New(database, logger)
	detector := conflict.NewDetector(st, st, logger)
	taskSvc := tasks.NewService(st, detector, nil, cfg.DefaultVolume, logger)
	librarySvc := library.NewService(st, nil, logger)
	return fn(taskSvc, librarySvc, st)
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseClock(raw string) (int, int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", raw)
	}
	return t.Hour(), t.Minute(), nil
}

func parseDays(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var days []int
	for _, part := range strings.Split(raw, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid day %q", part)
		}
		days = append(days, d)
	}
	return days, nil
}

func printTasks(out io.Writer, rows []models.TaskListing) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tREPEAT\tPLAYLIST\tVOLUME\tFADE\tENABLED\tNEXT")
	for _, row := range rows {
		repeat := string(row.RepeatMode)
		if row.RepeatMode == models.RepeatCustom {
			repeat += " " + row.CustomDays.String()
		}
		next := "-"
		if row.NextFireAt != nil {
			next = row.NextFireAt.Format("Mon 2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%02d:%02d\t%s\t%s\t%d\t%ds\t%t\t%s\n",
			row.ID, row.Name, row.Hour, row.Minute, repeat, row.PlaylistName, row.Volume, row.FadeInSeconds, row.IsEnabled, next)
	}
	return w.Flush()
}

func printConflicts(out io.Writer, found []conflict.Conflict) {
	for _, c := range found {
		fmt.Fprintf(out, "warning: overlaps task %d %q at %02d:%02d\n", c.TaskID, c.Name, c.Hour, c.Minute)
	}
}
