// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package main provides the command-line interface and the main entry point for TruthGate.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/verityhq/truthgate/anomaly"
	"github.com/verityhq/truthgate/config"
	"github.com/verityhq/truthgate/connectors"
	"github.com/verityhq/truthgate/correction"
	"github.com/verityhq/truthgate/formatters"
	"github.com/verityhq/truthgate/pkg/logging"
	"github.com/verityhq/truthgate/providers"
	"github.com/verityhq/truthgate/runners"
	"github.com/verityhq/truthgate/validation"
	"github.com/verityhq/truthgate/version"
)

const (
	runCommandName             = "run"
	helpCommandName            = "help"
	versionCommandName         = "version"
	unsetFlagValue             = "\x00"
	exitCodeBadCommand         = 2
	exitCodeFinishedWithErrors = 3
	defaultConfigFile          = "config.yaml"
)

var (
	commandDoc = map[string]string{
		runCommandName:     "validate the configured requests",
		helpCommandName:    "show help",
		versionCommandName: "show version",
	}
)

var (
	csvFormatter        = formatters.NewCSVFormatter()
	htmlFormatter       = formatters.NewHTMLFormatter()
	jsonFormatter       = formatters.NewJSONFormatter()
	logFormatter        = formatters.NewLogFormatter()
	summaryLogFormatter = formatters.NewSummaryLogFormatter()
)

var (
	configFilePath     = flag.String("config", defaultConfigFile, "configuration file path")
	requestsFilePath   = flag.String("requests", unsetFlagValue, "validation request definitions file path")
	outputFileDir      = flag.String("output-dir", unsetFlagValue, "results output directory")
	outputFileBasename = flag.String("output-basename", unsetFlagValue, "base filename for results; replace if exists; blank = stdout")
	formatHTML         = formatFlag(htmlFormatter, true)
	formatCSV          = formatFlag(csvFormatter, false)
	formatJSON         = formatFlag(jsonFormatter, false)
	logFilePath        = flag.String("log", unsetFlagValue, "log file path; append if exists; blank = stdout")
	concurrency        = flag.Int("concurrency", 0, "maximum number of requests validated in parallel; 0 = default")
	verbose            = flag.Bool("verbose", false, "enable detailed logging")
	debug              = flag.Bool("debug", false, "enable low-level debug logging")
)

func formatFlag(formatter formatters.Formatter, defaultValue bool) *bool {
	fileExt := formatter.FileExt()
	return flag.Bool(strings.ToLower(fileExt), defaultValue, fmt.Sprintf("generate %s output", strings.ToUpper(fileExt)))
}

var stderr = zerolog.New(zerolog.NewConsoleWriter(
	func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
		w.TimeFormat = time.DateTime
		w.NoColor = true
	},
)).Level(zerolog.TraceLevel).With().Timestamp().Logger()

func init() {
	flag.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage: %s [options] [command]\n", os.Args[0])
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Commands:")
		printCommandHelp(w, runCommandName, helpCommandName, versionCommandName)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		flag.PrintDefaults()
	}
}

func printCommandHelp(out io.Writer, commands ...string) {
	for _, cmdName := range commands {
		formatCommandHelp(out, cmdName, commandDoc[cmdName])
	}
}

func formatCommandHelp(out io.Writer, name string, usage string) {
	fmt.Fprintf(out, "  %s\n", name)
	fmt.Fprintf(out, "        %s\n", usage)
}

func main() {
	flag.Parse()
	for _, arg := range flag.Args() {
		switch arg {
		case helpCommandName:
			printHelp(os.Stdout)
			return
		case versionCommandName:
			printVersion(os.Stdout)
			return
		case runCommandName:
			if ok, err := run(context.Background()); err != nil {
				stderr.Fatal().Err(err).Send()
			} else if !ok {
				os.Exit(exitCodeFinishedWithErrors)
			}
			return
		}
	}
	printHelp(nil) // os.Stderr
	os.Exit(exitCodeBadCommand)
}

func run(ctx context.Context) (ok bool, err error) {
	configPath := filepath.Clean(*configFilePath)
	workingDir, configDir, err := getWorkingDirectories(configPath)
	if err != nil {
		return
	}
	fmt.Printf("Current working directory: %s\n", workingDir)
	fmt.Printf("Configuration directory: %s\n", configDir)

	// Load configuration.
	fmt.Printf("Loading configuration from file: %s\n", configPath)
	cfg, err := config.LoadConfigFromFile(ctx, configPath)
	if err != nil {
		return
	}

	// Load validation requests.
	requestsFile := config.CleanIfNotBlank(getFlagValueIfSet(requestsFilePath, config.MakeAbs(configDir, cfg.Config.RequestSource)))
	fmt.Printf("Loading validation requests from file: %s\n", requestsFile)
	requests, err := config.LoadRequestsFromFile(ctx, requestsFile)
	if err != nil {
		return
	}

	// Filter out disabled requests.
	targetRequests := requests.RequestConfig.GetEnabledRequests()
	if len(targetRequests) < 1 {
		fmt.Println("Nothing to run: all requests are disabled.")
		return true, nil
	}

	// Time to be used to resolve name patterns.
	timeRef := time.Now()

	// Create output files.
	outputWriters := make(map[formatters.Formatter]io.Writer)
	for _, formatter := range enabledFormatters() {
		outputWriters[formatter] = os.Stdout // default
		if fileName := getFlagValueIfSet(outputFileBasename, cfg.Config.OutputBaseName); config.IsNotBlank(fileName) {
			fileName = fmt.Sprintf("%s.%s", fileName, formatter.FileExt())
			if fp, outputPath, err := createOutputFile(config.MakeAbs(
				getFlagValueIfSet(outputFileDir, config.MakeAbs(configDir, cfg.Config.OutputDir)), fileName), timeRef, false); err != nil {
				return ok, err
			} else if fp != nil {
				defer fp.Close()
				fmt.Printf("Results in %s format will be saved to: %s\n", strings.ToUpper(formatter.FileExt()), outputPath)
				outputWriters[formatter] = fp
			}
		}
	}

	// Configure logger.
	logWriters := []io.Writer{zerolog.NewConsoleWriter(
		func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stdout
			w.TimeFormat = time.DateTime
			w.NoColor = false
		},
	)}
	logFile := os.Stdout
	if fp, logPath, err := createOutputFile(getFlagValueIfSet(logFilePath, config.MakeAbs(configDir, cfg.Config.LogFile)), timeRef, true); err != nil {
		return ok, err
	} else if fp != nil {
		fmt.Printf("Log messages will be saved to: %s\n", logPath)
		defer fp.Close()
		logFile = fp
		logWriters = append(logWriters, zerolog.NewConsoleWriter(
			func(w *zerolog.ConsoleWriter) {
				w.Out = logFile
				w.TimeFormat = time.DateTime
				w.NoColor = true
			},
		)) // format the file output as plain-text without color codes
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(logWriters...)).Level(getEnabledLogLevel()).With().Timestamp().Logger()

	// Assemble the validation pipeline.
	orchestrator, err := newOrchestrator(ctx, cfg, configDir, logging.NewZerologLogger(logger))
	if err != nil {
		return
	}

	// Run validations.
	exec := runners.NewDefaultRunner(orchestrator, *concurrency, logger)
	defer exec.Close(ctx)
	if err = exec.Run(ctx, targetRequests); err != nil { // blocking call
		return
	}
	results := exec.GetResults()

	// Print and save the results.
	ok = !logResults(results, logFile)
	ok = ok && !saveResults(results, outputWriters)
	ok = ok && !results.HasFailures()

	return
}

// newOrchestrator wires the evaluator dependencies that the configuration
// enables into a ready-to-use validation pipeline.
func newOrchestrator(ctx context.Context, cfg *config.Config, configDir string, logger logging.Logger) (*validation.Orchestrator, error) {
	registry := connectors.NewRegistry(logger)
	if err := connectors.RegisterBuiltins(registry, nil); err != nil {
		return nil, err
	}

	engineCfg := validation.EngineConfig{
		Connectors: registry,
		Heuristics: cfg.Config.Validation.Heuristics,
	}
	if cfg.Config.Validation.ZScoreThreshold != nil {
		engineCfg.ZScoreThreshold = *cfg.Config.Validation.ZScoreThreshold
	}
	if cfg.Config.Validation.IQRMultiplier != nil {
		engineCfg.IQRMultiplier = *cfg.Config.Validation.IQRMultiplier
	}

	if cfg.Config.Providers.OpenAI != nil {
		engineCfg.Embedder = providers.NewOpenAIEmbedder(*cfg.Config.Providers.OpenAI, cfg.Config.Providers.Embeddings)
	}
	if cfg.Config.Providers.GoogleAI != nil {
		factChecker, err := providers.NewGoogleFactChecker(ctx, *cfg.Config.Providers.GoogleAI, cfg.Config.Providers.FactCheck)
		if err != nil {
			return nil, err
		}
		engineCfg.FactChecker = factChecker
	}

	var store anomaly.ModelStore = anomaly.NewMemoryStore()
	if config.IsNotBlank(cfg.Config.ModelStoreDir) {
		fileStore, err := anomaly.NewFileStore(config.MakeAbs(configDir, cfg.Config.ModelStoreDir))
		if err != nil {
			return nil, err
		}
		store = fileStore
	}
	engineCfg.Anomalies = anomaly.NewRegistry(store, logger)

	engine := validation.NewEngine(engineCfg, logger)
	return validation.NewOrchestrator(engine, correction.NewCorrector(logger), logger), nil
}

func enabledFormatters() (enabled []formatters.Formatter) {
	if isEnabled(formatHTML) {
		enabled = append(enabled, htmlFormatter)
	}
	if isEnabled(formatCSV) {
		enabled = append(enabled, csvFormatter)
	}
	if isEnabled(formatJSON) {
		enabled = append(enabled, jsonFormatter)
	}
	return enabled
}

func isEnabled(value *bool) bool {
	return value != nil && *value
}

func getWorkingDirectories(configFilePath string) (workingDir string, configDir string, err error) {
	workingDir, err = os.Getwd()
	if err != nil {
		return
	}

	// If the path is not absolute it will be joined with the current working directory.
	absConfigPath, err := filepath.Abs(configFilePath)
	if err != nil {
		return
	}
	configDir = filepath.Dir(absConfigPath)

	return
}

func getEnabledLogLevel() zerolog.Level {
	if isEnabled(debug) {
		return zerolog.TraceLevel
	} else if isEnabled(verbose) {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func getFlagValueIfSet(value *string, defaultValue string) string {
	if (value != nil) && *value != unsetFlagValue {
		return *value
	}
	return defaultValue
}

func printHelp(out io.Writer) {
	flag.CommandLine.SetOutput(out)
	flag.Usage()
}

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "%s %s\n", version.Name, version.GetVersion())
}

func createOutputFile(outputFilePath string, timeRef time.Time, append bool) (outputFile *os.File, outputPath string, err error) {
	if outputPath = config.CleanIfNotBlank(config.ResolveFileNamePattern(outputFilePath, timeRef)); config.IsNotBlank(outputPath) {
		if err = os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
			return
		}
		if append {
			outputFile, err = os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		} else {
			outputFile, err = os.Create(outputPath)
		}
	}
	return
}

func logResults(results runners.Results, out io.Writer) (finishedWithErrors bool) {
	fmt.Fprintln(out)
	if err := summaryLogFormatter.Write(results, out); err != nil {
		stderr.Warn().Err(err).Msg("failed to log summary")
		finishedWithErrors = true
	}
	fmt.Fprintln(out)
	if err := logFormatter.Write(results, out); err != nil {
		stderr.Warn().Err(err).Msg("failed to log results")
		finishedWithErrors = true
	}
	fmt.Fprintln(out)
	return
}

func saveResults(results runners.Results, outputWriters map[formatters.Formatter]io.Writer) (finishedWithErrors bool) {
	for formatter, out := range outputWriters {
		if err := formatter.Write(results, out); err != nil {
			stderr.Warn().Err(err).Msgf("failed to write %s output", strings.ToUpper(formatter.FileExt()))
			finishedWithErrors = true
		}
	}
	return
}
