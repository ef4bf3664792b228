package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "eventfaces",
	Short: "Tag registered guests in event photos by face",
	Long: `eventfaces detects faces in event photos, matches them against the
reference selfies of the event's registered guests and records who appears
in which photo. It runs as an HTTP service or as one-shot CLI commands.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional
	_ = godotenv.Load()
}
