package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "boxprov",
	Short: "Container box provisioning - guest release and package management",
	Long:  `Provisions container-runtime guests: release upgrades with repository rollback, routine package maintenance, one-time first-run setup, compose binary sync, and tooling verification.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("release-file", "/etc/alpine-release", "Release file path")
	rootCmd.PersistentFlags().String("repo-file", "/etc/apk/repositories", "Repository list path")
	rootCmd.PersistentFlags().String("marker-path", "/etc/boxprov/provisioned", "Provisioning marker path")
	rootCmd.PersistentFlags().String("mirror", "https://dl-cdn.alpinelinux.org/alpine", "Package mirror base URL")
	rootCmd.PersistentFlags().String("ledger-path", "/var/lib/boxprov/runs.db", "Run ledger SQLite path")
	rootCmd.PersistentFlags().String("fsm-db-path", "/var/lib/boxprov/fsm", "FSM BoltDB path")
	rootCmd.PersistentFlags().Int("fsm-max-retries", 5, "Max retries per FSM state")

	viper.BindPFlag("release-file", rootCmd.PersistentFlags().Lookup("release-file"))
	viper.BindPFlag("repo-file", rootCmd.PersistentFlags().Lookup("repo-file"))
	viper.BindPFlag("marker-path", rootCmd.PersistentFlags().Lookup("marker-path"))
	viper.BindPFlag("mirror", rootCmd.PersistentFlags().Lookup("mirror"))
	viper.BindPFlag("ledger-path", rootCmd.PersistentFlags().Lookup("ledger-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("fsm-max-retries", rootCmd.PersistentFlags().Lookup("fsm-max-retries"))
}
