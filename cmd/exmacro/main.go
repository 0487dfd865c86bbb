// Package main provides the CLI entry point for exmacro.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alokyadav2020/CodeConversion/internal/auth"
	"github.com/alokyadav2020/CodeConversion/internal/config"
	"github.com/alokyadav2020/CodeConversion/internal/logging"
	"github.com/alokyadav2020/CodeConversion/internal/server"
	"github.com/alokyadav2020/CodeConversion/internal/translate"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/output"
)

var (
	configPath string
	logLevel   string
	debug      bool

	outputPath   string
	pretty       bool
	format       string
	mode         string
	sheetFilter  string
	typeFilter   []string
	controlsOnly bool

	listModules bool
	modulesDir  string

	moduleName  string
	instruction string

	addr string

	cfg    *config.Config
	logger zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "exmacro",
		Short: "Extract VBA macros and UI controls from Excel files",
		Long: `exmacro extracts VBA macro source and control metadata (shapes, form
controls, ActiveX controls, UserForms) from Excel workbooks, and can convert
the macros to C# through a hosted LLM.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./exmacro.yaml or ~/.config/exmacro/exmacro.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Attach error details to warnings")

	rootCmd.AddCommand(controlsCmd(), vbaCmd(), convertCmd(), serveCmd(), hashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if debug {
		cfg.Extraction.Debug = true
	}
	logger = logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	return nil
}

func extractionOptions(modeFlag string) exmacro.Options {
	opts := exmacro.DefaultOptions()
	m := cfg.Extraction.Mode
	if modeFlag != "" {
		m = modeFlag
	}
	opts.Mode = exmacro.ParseMode(m)
	opts.Debug = cfg.Extraction.Debug
	opts.TempDir = cfg.Server.TempDir
	opts.Logger = logger
	return opts
}

func controlsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controls [input.xlsm]",
		Short: "List controls, shapes, worksheets and macro containers",
		Args:  cobra.ExactArgs(1),
		RunE:  runControls,
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json, csv")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	cmd.Flags().StringVar(&mode, "mode", "", "Extraction mode: light, standard, verbose")
	cmd.Flags().StringVar(&sheetFilter, "sheet", "", "Only list items on this sheet")
	cmd.Flags().StringSliceVar(&typeFilter, "type", nil, "Only list items whose kind contains this text (repeatable)")
	cmd.Flags().BoolVar(&controlsOnly, "controls-only", false, "Emit the JSON descriptor array without the result envelope")
	return cmd
}

func runControls(cmd *cobra.Command, args []string) error {
	if mode != "" && exmacro.ParseMode(mode) != exmacro.Mode(mode) {
		return fmt.Errorf("invalid mode: %s (must be light, standard, or verbose)", mode)
	}

	result, err := exmacro.New(extractionOptions(mode)).ExtractFile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	controls := output.Filter(result.Controls, sheetFilter, typeFilter)

	var data []byte
	switch strings.ToLower(format) {
	case "csv":
		var buf bytes.Buffer
		if err := output.WriteCSV(&buf, controls); err != nil {
			return fmt.Errorf("serialization failed: %w", err)
		}
		data = buf.Bytes()
	case "json":
		if controlsOnly {
			if data, err = output.ControlsToJSON(controls, pretty); err != nil {
				return fmt.Errorf("serialization failed: %w", err)
			}
			break
		}
		filtered := *result
		filtered.Controls = controls
		filtered.VBAText = ""
		filtered.Modules = nil
		if data, err = output.ToJSON(&filtered, pretty); err != nil {
			return fmt.Errorf("serialization failed: %w", err)
		}
	default:
		return fmt.Errorf("invalid format: %s (must be json or csv)", format)
	}

	return writeOutput(data)
}

func vbaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vba [input.xlsm]",
		Short: "Extract VBA macro source",
		Args:  cobra.ExactArgs(1),
		RunE:  runVBA,
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().BoolVar(&listModules, "list", false, "List module names and kinds only")
	cmd.Flags().StringVar(&modulesDir, "modules-dir", "", "Directory for per-module .bas/.cls/.frm files")
	return cmd
}

func runVBA(cmd *cobra.Command, args []string) error {
	result, err := extractWithVBA(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if !result.HasVBA() {
		fmt.Fprintln(os.Stderr, "No VBA macros found.")
		return nil
	}

	if listModules {
		var sb strings.Builder
		for _, m := range result.Modules {
			fmt.Fprintf(&sb, "%s\t%s\t%s\n", m.Name, m.Kind, m.StreamPath)
		}
		return writeOutput([]byte(sb.String()))
	}

	if modulesDir != "" {
		if err := output.WriteModules(modulesDir, result.Modules); err != nil {
			return fmt.Errorf("failed to write module files: %w", err)
		}
		if outputPath == "" {
			return nil
		}
	}

	return writeOutput([]byte(result.VBAText))
}

func extractWithVBA(ctx context.Context, path string) (*models.ExtractionResult, error) {
	opts := extractionOptions("")
	include := true
	opts.IncludeVBA = &include

	result, err := exmacro.New(opts).ExtractFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	return result, nil
}

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [input.xlsm]",
		Short: "Convert the workbook's VBA macros to C#",
		Args:  cobra.ExactArgs(1),
		RunE:  runConvert,
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&moduleName, "module", "", "Convert only this module")
	cmd.Flags().StringVar(&instruction, "instruction", "", "Replace the default conversion instruction")
	return cmd
}

func newTranslator() (*translate.Client, error) {
	return translate.New(translate.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Endpoint:    cfg.LLM.Endpoint,
		Deployment:  cfg.LLM.Deployment,
		APIVersion:  cfg.LLM.APIVersion,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
}

func runConvert(cmd *cobra.Command, args []string) error {
	client, err := newTranslator()
	if err != nil {
		return err
	}

	result, err := extractWithVBA(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	req := translate.Request{VBACode: result.VBAText, Instruction: instruction}
	if moduleName != "" {
		m, ok := result.Module(moduleName)
		if !ok {
			return fmt.Errorf("module %q not found", moduleName)
		}
		req.VBACode = m.Code
		req.Module = m.Name
	}

	conv, err := client.Convert(cmd.Context(), req)
	if err != nil {
		return errors.New(translate.ErrorMessage(err))
	}
	return writeOutput([]byte(conv.Code + "\n"))
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the extraction and conversion HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr != "" {
		cfg.Server.Addr = addr
	}

	if !cfg.Auth.Enabled() {
		logger.Warn().Msg("no auth.username/auth.password configured; the API is open")
	}
	sessions := auth.NewSessionManager(cfg.Auth.Username, cfg.Auth.Password, cfg.Auth.SessionTTL)

	var translator server.Translator
	if client, err := newTranslator(); err != nil {
		logger.Warn().Err(err).Msg("conversion disabled")
	} else {
		translator = client
	}

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		Extraction:     extractionOptions(""),
	}, sessions, translator, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for auth.password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func writeOutput(data []byte) error {
	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	_, err := os.Stdout.Write(data)
	return err
}
