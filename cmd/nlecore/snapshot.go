package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/nlecore/internal/config"
	"github.com/ivlev/nlecore/internal/logging"
	"github.com/ivlev/nlecore/internal/project"
	"github.com/ivlev/nlecore/internal/store"
)

var snapshotFlags struct {
	name   string
	output string
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save and restore project snapshots",
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save [project file]",
	Short: "Store the current state of a project file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		path, err := projectPath(cfg, args)
		if err != nil {
			return err
		}
		ed, err := openProject(cfg, path)
		if err != nil {
			return err
		}
		name := snapshotFlags.name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := st.Save(cmd.Context(), name, ed.State())
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", snap.ID)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		snaps, err := st.List(cmd.Context(), snapshotFlags.name)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROJECT\tCLIPS\tDURATION\tCREATED")
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.Project, s.Clips,
				time.Duration(s.Duration)*time.Millisecond, s.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot id>",
	Short: "Write a snapshot back to a project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, state, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := snapshotFlags.output
		if out == "" {
			out = project.GeneratePath(projectsDir(cfg), snap.Project)
		}
		if err := project.WriteFile(out, &state); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "[+] Snapshot %s restored to %s\n", snap.ID, out)
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <snapshot id>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		return st.Delete(cmd.Context(), args[0])
	},
}

func init() {
	snapshotCmd.PersistentFlags().StringVar(&snapshotFlags.name, "name", "", "project name (default: project file name)")
	snapshotRestoreCmd.Flags().StringVarP(&snapshotFlags.output, "output", "o", "", "project file to write (default: a new file in the projects directory)")

	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.New(cfg.DBPath(), logging.WithComponent(logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return st, nil
}
