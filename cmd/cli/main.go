package main

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/myrjola/profilescan/cmd/cli/insight"
	"github.com/myrjola/profilescan/cmd/cli/score"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/spf13/cobra"
	"io/fs"
	"os"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(score.Group)
	rootCmd.AddCommand(score.Score, score.Questions)
	rootCmd.AddGroup(insight.Group)
	rootCmd.AddCommand(insight.Explain)
}

var rootCmd = &cobra.Command{
	Use:           "profilescan-cli",
	Long:          `Command line utilities for scoring attachment style and relationship pattern assessments`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
