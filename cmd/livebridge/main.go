package main

import (
	"fmt"
	"io"
	"os"
)

const version = "0.3.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := argv[0]
	args := argv[1:]

	switch cmd {
	// --- NOUNS ---
	case "host":
		return runHostNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- VERBS ---
	case "send":
		return runSend(args)
	case "commands":
		return runCommands(args)
	case "journal":
		return runJournal(args)

	case "start":
		return runHostStart(args)
	case "version":
		fmt.Printf("livebridge version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `livebridge - JSON command bridge into a single-threaded host

Usage:
  livebridge <command> [flags]

Host:
  host start                  Run the command host in the foreground
  host watch                  Live terminal view of a running host's status API
  start                       Alias for 'host start'

Client:
  send <name> [params-json]   Send one command and print its result
  commands                    List the command catalogue and classes
  journal                     Show recent dispatches from the journal

Config:
  config check                Validate configuration and print its fingerprint
  config show                 Print the effective configuration

General:
  version                     Show version information
  help                        Show this help message

Every command accepts --config PATH. Without it livebridge looks at
$LIVEBRIDGE_CONFIG, ~/.config/livebridge/config.yaml and ./livebridge.yaml,
then falls back to defaults. LIVEBRIDGE_HOST, LIVEBRIDGE_PORT,
LIVEBRIDGE_LONG_TIMEOUT (Go duration or seconds) and LIVEBRIDGE_LOG_LEVEL
override the file.
`)
}

// --- NOUN DISPATCHERS ---

func runHostNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: livebridge host <action>")
		fmt.Fprintln(os.Stderr, "Actions: start, watch")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: livebridge host <action>")
		fmt.Println("Actions: start, watch")
		return 0
	}

	switch args[0] {
	case "start":
		return runHostStart(args[1:])
	case "watch":
		return runHostWatch(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown host action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: livebridge config <action>")
		fmt.Fprintln(os.Stderr, "Actions: check, show")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: livebridge config <action>")
		fmt.Println("Actions: check, show")
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "show":
		return runConfigShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}
