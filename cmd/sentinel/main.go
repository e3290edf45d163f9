package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. It returns the process exit code.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runPatrolCmd(nil, stdin, stdout, stderr)
	}

	switch args[1] {
	case "run", "patrol":
		return runPatrolCmd(args[2:], stdin, stdout, stderr)
	case "once":
		return runOnceCmd(args[2:], stdin, stdout, stderr)
	case "fingerprint":
		return runFingerprintCmd(args[2:], stdin, stdout, stderr)
	case "ledger":
		return runLedgerCmd(args[2:], stdout, stderr)
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1] != "" && args[1][0] == '-' {
			return runPatrolCmd(args[1:], stdin, stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sSentinel %s%s\n", ColorBold+ColorBlue, version, ColorReset)
	fmt.Fprintf(w, "%sDetect. Reason. Ask. Record.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  sentinel <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "PATROL")
	printCommand(w, "run", "Run a timed patrol session (default)")
	printCommand(w, "once", "Run a single patrol cycle and print its result")

	printSection(w, "LEDGER")
	printCommand(w, "fingerprint", "Print the ledger fingerprint of an observation file")
	printCommand(w, "ledger list", "List committed entries (file, sqlite, postgres)")

	printSection(w, "CONFIGURATION")
	printCommand(w, "validate", "Load and validate the configuration")
	printCommand(w, "help", "Show this help")

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sCommon flags:%s -config <path> (or SENTINEL_CONFIG)\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-14s%s %s\n", ColorGreen, name, ColorReset, desc)
}
