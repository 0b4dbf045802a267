// Copyright Peton Labs, 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petonlabs/systematic-review-data-extraction/internal/mode"
)

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Show or set the acquisition strategy",
}

var modeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved acquisition strategy and counters",
	RunE:  runModeShow,
}

var modeSetCmd = &cobra.Command{
	Use:   "set <strategy>",
	Short: "Set the acquisition strategy (1/content or 2/document)",
	Args:  cobra.ExactArgs(1),
	RunE:  runModeSet,
}

func init() {
	modeCmd.AddCommand(modeShowCmd)
	modeCmd.AddCommand(modeSetCmd)
	rootCmd.AddCommand(modeCmd)
}

func runModeShow(cmd *cobra.Command, args []string) error {
	mgr := mode.NewManager(pipelineConfig().Mode)
	state, err := mgr.Load()
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Println("No saved mode; the next run will prompt for a strategy.")
		return nil
	}

	fmt.Printf("Strategy:      %s\n", state.Strategy)
	fmt.Printf("Cache enabled: %t\n", state.CacheEnabled)
	fmt.Printf("Last used:     %s\n", state.LastUsedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Processed:     %d (%d succeeded, %d failed)\n",
		state.Processed, state.Succeeded, state.Failed)
	if state.ResumeMarker != "" {
		fmt.Printf("Resume marker: %s\n", state.ResumeMarker)
	}
	if state.Notes != "" {
		fmt.Printf("Notes:         %s\n", state.Notes)
	}
	return nil
}

func runModeSet(cmd *cobra.Command, args []string) error {
	mgr := mode.NewManager(pipelineConfig().Mode)
	state, err := mgr.Load()
	if err != nil {
		return err
	}

	strategy, err := mode.ChooseStrategy(state, args[0])
	if err != nil {
		return err
	}
	if state == nil {
		state = &mode.State{CacheEnabled: true}
	}
	state.Strategy = strategy
	if err := mgr.Save(state); err != nil {
		return err
	}
	fmt.Printf("Strategy set to %s\n", strategy)
	return nil
}
