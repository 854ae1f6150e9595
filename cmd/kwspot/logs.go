package main

import (
	"encoding/json"
	"fmt"

	"github.com/realtime-ai/keyword-spotter/pkg/logstore"
	"github.com/spf13/cobra"
)

func newLogsCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the detection log",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of stored detections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			store, err := logstore.OpenFileStore(cfg.Paths.Log)
			if err != nil {
				return err
			}
			n, err := store.Len()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Print all stored detections as JSON and clear the log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			store, err := logstore.OpenFileStore(cfg.Paths.Log)
			if err != nil {
				return err
			}
			records, err := store.Drain()
			if err != nil {
				return err
			}
			if records == nil {
				records = []logstore.Record{}
			}
			out, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			log.WithField("records", len(records)).Info("[kwspot] Detection log drained")
			return nil
		},
	})
	return cmd
}

func newConfigCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
