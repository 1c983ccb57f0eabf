// Package main provides the unitcalc CLI entry point: an interactive
// precision calculator session by default, with one-shot eval and solve
// subcommands for scripting.
package main

import (
	gocontext "context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"unitcalc/internal/context"
	"unitcalc/internal/logger"
	"unitcalc/internal/output"
	"unitcalc/internal/shell"
	"unitcalc/internal/version"
)

var (
	logLevel      string
	logFile       string
	testMode      bool
	plain         bool
	precisionFlag int
)

// rootCmd starts the interactive session when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "unitcalc",
	Short: "unitcalc - precision calculator with units and equation solving",
	Long: `unitcalc is an interactive calculator that preserves input precision,
tracks physical units through arithmetic, and solves equations analytically
where possible and numerically where not.`,
	Run: runRepl,
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive session",
	Run:   runRepl,
}

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate one expression and exit",
	Long: `Evaluate a single expression, print the result, and exit.
Quote the expression so the shell does not split it: unitcalc eval "12 km / 4 m"`,
	Args: cobra.MinimumNArgs(1),
	Run:  runEval,
}

var solveCmd = &cobra.Command{
	Use:   "solve <equation> [for <variable>] [from <start>]",
	Short: "Solve one equation and exit",
	Args:  cobra.MinimumNArgs(1),
	Run:   runSolve,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable styled output")
	rootCmd.PersistentFlags().IntVar(&precisionFlag, "precision", 0, "Output precision in significant digits (overrides config)")

	for _, flag := range []string{"log-level", "log-file", "test-mode", "plain", "precision"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func newPrinter() *output.Printer {
	var options []output.Option
	if plain || testMode {
		options = append(options, output.WithPlain())
	}
	return output.NewPrinter(options...)
}

func mustInitServices() {
	if err := shell.InitializeServices(testMode); err != nil {
		logger.Fatal("Failed to initialize services", "error", err)
	}
	// The flag outranks the config file.
	if precisionFlag > 0 {
		if err := context.GetGlobalContext().SetOutputPrecision(precisionFlag); err != nil {
			logger.Fatal("Bad precision flag", "error", err)
		}
	}
}

func runRepl(_ *cobra.Command, _ []string) {
	logger.Info("Starting unitcalc", "version", version.GetVersion())
	mustInitServices()

	p := newPrinter()
	p.Printf("unitcalc v%s - type :help for commands, :quit to exit\n", version.GetVersion())
	if err := shell.Run(p); err != nil {
		logger.Fatal("Session failed", "error", err)
	}
}

func runEval(_ *cobra.Command, args []string) {
	mustInitServices()
	goCtx, stop := signal.NotifyContext(gocontext.Background(), os.Interrupt)
	defer stop()
	shell.ProcessLine(goCtx, strings.Join(args, " "), newPrinter())
}

func runSolve(_ *cobra.Command, args []string) {
	mustInitServices()
	goCtx, stop := signal.NotifyContext(gocontext.Background(), os.Interrupt)
	defer stop()
	shell.ProcessLine(goCtx, "solve "+strings.Join(args, " "), newPrinter())
}
