/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/dawnchorus/internal/library"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/friendsincode/dawnchorus/internal/tasks"
)

var (
	audioName     string
	audioDuration time.Duration
)

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Manage the audio library",
}

var audioAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register an audio file",
	Long: `Register an audio file so it can be added to playlists.

The duration is used to pace playback and to detect overlapping tasks.

Example:
  dawnchorus audio add /srv/sounds/birdsong.ogg --duration 4m30s
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(_ *tasks.Service, lib *library.Service, _ *store.Store) error {
			audio, err := lib.RegisterAudio(cmd.Context(), audioName, path, int(audioDuration.Round(time.Second).Seconds()))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered audio %d (%s)\n", audio.ID, audio.Name)
			return nil
		})
	},
}

var playlistsCmd = &cobra.Command{
	Use:     "playlists",
	Aliases: []string{"playlist"},
	Short:   "Manage playlists",
}

var playlistsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List playlists with their size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(_ *tasks.Service, _ *library.Service, st *store.Store) error {
			rows, err := st.ListPlaylists(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tITEMS\tLENGTH")
			for _, row := range rows {
				length := time.Duration(row.DurationSeconds) * time.Second
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", row.ID, row.Name, row.ItemCount, length)
			}
			return w.Flush()
		})
	},
}

var playlistsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(_ *tasks.Service, lib *library.Service, _ *store.Store) error {
			pl, err := lib.CreatePlaylist(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created playlist %d\n", pl.ID)
			return nil
		})
	},
}

var playlistsAddCmd = &cobra.Command{
	Use:   "add <playlist-id> <audio-id>...",
	Short: "Append audio files to a playlist",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		playlistID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(_ *tasks.Service, lib *library.Service, _ *store.Store) error {
			for _, raw := range args[1:] {
				audioID, err := parseTaskID(raw)
				if err != nil {
					return err
				}
				if _, err := lib.AddItem(cmd.Context(), playlistID, audioID); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var playlistsShowCmd = &cobra.Command{
	Use:   "show <playlist-id>",
	Short: "List the entries of a playlist in play order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		playlistID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(_ *tasks.Service, _ *library.Service, st *store.Store) error {
			entries, err := st.PlaylistEntries(cmd.Context(), playlistID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tITEM\tAUDIO\tNAME\tLENGTH\tPATH")
			for i, e := range entries {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n", i+1, e.ItemID, e.AudioID, e.Name, time.Duration(e.Duration)*time.Second, e.Path)
			}
			return w.Flush()
		})
	},
}

var playlistsDeleteCmd = &cobra.Command{
	Use:   "delete <playlist-id>",
	Short: "Delete a playlist and every task that plays it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		playlistID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(_ *tasks.Service, lib *library.Service, st *store.Store) error {
			rows, err := st.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range rows {
				if t.PlaylistID == playlistID {
					fmt.Fprintf(cmd.ErrOrStderr(), "removing task %d %q\n", t.ID, t.Name)
				}
			}
			return lib.DeletePlaylist(cmd.Context(), playlistID)
		})
	},
}

func init() {
	audioAddCmd.Flags().StringVar(&audioName, "name", "", "Display name (default: file name)")
	audioAddCmd.Flags().DurationVar(&audioDuration, "duration", 0, "Length of the clip, e.g. 3m20s")
	_ = audioAddCmd.MarkFlagRequired("duration")
	audioCmd.AddCommand(audioAddCmd)

	playlistsCmd.AddCommand(playlistsListCmd, playlistsCreateCmd, playlistsAddCmd, playlistsShowCmd, playlistsDeleteCmd)
	rootCmd.AddCommand(audioCmd, playlistsCmd)
}
