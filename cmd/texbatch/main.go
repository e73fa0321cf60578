// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the texbatch CLI, which compiles every
// LaTeX fragment in a folder into its own PDF or Word document.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the texbatch CLI.
var rootCmd = &cobra.Command{
	Use:   "texbatch",
	Short: "Compile folders of LaTeX fragments into PDF or Word documents",
	Long: `texbatch turns every .tex fragment in a folder into a standalone document.
Each fragment is wrapped in a minimal preamble, compiled on its own, and the
result is written next to it as <name>.pdf or <name>.docx. A BibTeX database in
the folder is used for fragments that cite.

External tools (pdflatex, bibtex, pandoc) are found on PATH or in the usual
install locations; run "texbatch doctor" to see what was found.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./texbatch.yaml or ~/.config/texbatch/texbatch.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log tool invocations and print per-fragment progress")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("texbatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "texbatch"))
		}
	}

	viper.SetEnvPrefix("TEXBATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		logger().Debug("using config file", "path", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Reading config file %s: %v\n", cfgFile, err)
	}
}

// logger returns the process logger: text on stderr, warnings by default and
// everything with --verbose.
func logger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
