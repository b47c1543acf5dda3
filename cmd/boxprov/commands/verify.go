package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/containerbox/boxprov/internal/config"
	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/provision"
	"github.com/containerbox/boxprov/pkg/system"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that container tooling answers with a version",
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	verifier := provision.NewVerifier(&system.ExecRunner{}, cfg.ApkTimeout)
	checks, err := verifier.Verify(context.Background())

	for _, check := range checks {
		fmt.Printf("%s %s %s\n", color.GreenString("✅"), check.Tool, check.Version)
	}
	if err != nil {
		fmt.Printf("%s %v\n", color.RedString("❌"), err)
		return errors.Wrap(err, "verification failed")
	}

	return nil
}
