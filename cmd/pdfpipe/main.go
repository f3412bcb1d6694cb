// Command pdfpipe normalizes PDF encryption: it reads a PDF from a file
// or stdin, strips encryption when one of the configured passwords
// unlocks it, and writes the result to a file or stdout. Input that no
// password unlocks passes through unchanged.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfpipe/config"
	"github.com/wudi/pdfpipe/decrypt"
	"github.com/wudi/pdfpipe/observability"
	"github.com/wudi/pdfpipe/security"
)

type options struct {
	outPath    string
	configPath string
	passwords  []string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pdfpipe:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "pdfpipe [input.pdf]",
		Short: "Strip PDF encryption, passing unreadable input through unchanged",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := ""
			if len(args) == 1 {
				in = args[0]
			}
			return run(cmd, in, opts)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	cmd.Flags().StringArrayVarP(&opts.passwords, "password", "p", nil, "password candidate, repeatable, tried in order")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")
	return cmd
}

func run(cmd *cobra.Command, inPath string, opts *options) error {
	passwords := opts.passwords
	limits := security.Limits{}
	if opts.configPath != "" {
		cf, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		// Flag passwords take priority over configured ones.
		passwords = append(passwords, cf.Decrypt.Passwords...)
		limits = cf.SecurityLimits()
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var in io.Reader = cmd.InOrStdin()
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = cmd.OutOrStdout()
	var outFile *os.File
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return err
		}
		outFile = f
		out = f
	}

	n := decrypt.New(decrypt.Config{
		Passwords: passwords,
		Logger:    log,
		Limits:    limits,
	})
	if err := n.Pipe(cmd.Context(), in, out); err != nil {
		if outFile != nil {
			outFile.Close()
		}
		return err
	}
	// A failed close can mean the result never reached disk.
	if outFile != nil {
		if err := outFile.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
	}
	return nil
}
