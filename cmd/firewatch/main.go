// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command firewatch ingests firewall syslog files incrementally, analyzes
// each new window through an LLM backend, and persists and mails the
// resulting reports.
//
// Usage:
//
//	firewatch run --config /etc/firewatch/firewatch.yaml
//	firewatch once --config ./firewatch.yaml
//	firewatch reports fw-edge --kind summary --limit 5
package main

import (
	"log"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "firewatch",
	Short: "LLM-assisted firewall log reporting",
	Long: `Firewatch watches firewall syslog files, extracts the lines that
arrived since the previous run, summarizes them through an LLM backend,
and delivers the reports by mail. Periodic rollups consolidate recent
reports into one trend overview per source.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the firewatch version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("firewatch %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "firewatch.yaml", "Path to the configuration file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(reportsCmd)
}
