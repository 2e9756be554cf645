package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattjoyce/livebridge/internal/client"
	"github.com/mattjoyce/livebridge/internal/config"
	"github.com/mattjoyce/livebridge/internal/journal"
	"github.com/mattjoyce/livebridge/internal/log"
	"github.com/mattjoyce/livebridge/internal/protocol"
	"github.com/mattjoyce/livebridge/internal/session"
	"github.com/mattjoyce/livebridge/internal/storage"
)

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	hostFlag := fs.String("host", "", "Host address (overrides config)")
	portFlag := fs.Int("port", 0, "Host port (overrides config)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: livebridge send [flags] <name> [params-json]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 1
	}

	name := fs.Arg(0)
	params, err := parseParams(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid params: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *hostFlag != "" {
		cfg.Host.Address = *hostFlag
	}
	if *portFlag != 0 {
		cfg.Host.Port = *portFlag
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := client.New(clientOptions(cfg))
	defer conn.Close()

	result, err := conn.Send(ctx, name, params)
	if err != nil {
		if kind := protocol.KindOf(err); kind != "" {
			fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", kind, protocol.MessageOf(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	var out bytes.Buffer
	if err := json.Indent(&out, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return 0
	}
	fmt.Println(out.String())
	return 0
}

// parseParams decodes the optional params argument. Absent means empty.
func parseParams(raw string) (protocol.Params, error) {
	if raw == "" {
		return protocol.Params{}, nil
	}
	var params protocol.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	if params == nil {
		return protocol.Params{}, nil
	}
	return params, nil
}

func clientOptions(cfg *config.Config) client.Options {
	return client.Options{
		Address:            cfg.Host.Endpoint(),
		Classifier:         session.Classes(),
		ReadOnlyTimeout:    cfg.Client.ReadOnlyTimeout,
		MutatingTimeout:    cfg.Client.MutatingTimeout,
		LongRunningTimeout: cfg.Client.LongRunningTimeout,
		SettleDelay:        cfg.Client.SettleDelay,
		ConnectTimeout:     cfg.Client.ConnectTimeout,
		GreetingTimeout:    cfg.Client.GreetingTimeout,
		MaxFrameSize:       cfg.Host.MaxFrameSize,
	}
}

func runCommands(args []string) int {
	fs := flag.NewFlagSet("commands", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	sess := session.New(session.Options{})
	reg, err := sess.Registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build catalogue: %v\n", err)
		return 1
	}

	if *jsonOut {
		table := reg.Table()
		data, _ := json.MarshalIndent(table, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	for _, e := range reg.Entries() {
		fmt.Printf("%-28s %s\n", e.Name, e.Class)
	}
	return 0
}

func runJournal(args []string) int {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Number of entries to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if _, err := os.Stat(cfg.Journal.Path); err != nil {
		fmt.Fprintf(os.Stderr, "No journal at %s\n", cfg.Journal.Path)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := journal.New(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		if entries == nil {
			entries = []journal.Entry{}
		}
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-26s %-12s %-15s %8s",
			e.StartedAt.Local().Format(time.DateTime), e.Command, e.Class, e.Status,
			strconv.FormatFloat(float64(e.Duration.Microseconds())/1000, 'f', 1, 64)+"ms")
		if e.Message != "" {
			line += "  " + e.Message
		}
		fmt.Println(line)
	}
	return 0
}
