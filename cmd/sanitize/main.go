// sanitize 以命令列掃描或清理單一對話，結果以 JSON 輸出.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"chat-sanitizer/internal/app"
	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/sanitizer"

	"github.com/spf13/pflag"
)

// 退出碼
const (
	exitOK    = 0
	exitRun   = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath     string
	seedFile       string
	conversationID string
	mode           string
	actor          string
	dryRun         bool
	confirm        bool
	quiet          bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("sanitize", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", "", "配置檔路徑，未指定時使用記憶體存儲")
	fs.StringVar(&opts.seedFile, "seed", "", "記憶體存儲的 JSON 種子檔")
	fs.StringVarP(&opts.conversationID, "conversation", "c", "", "對話 ID")
	fs.StringVarP(&opts.mode, "mode", "m", string(sanitizer.ModeScan), "scan、clean 或 delete")
	fs.StringVar(&opts.actor, "actor", "", "操作者 ID")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "只回報不寫入")
	fs.BoolVarP(&opts.confirm, "yes", "y", false, "確認執行 clean 或 delete")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "不輸出日誌")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.conversationID == "" {
		return nil, errors.New("--conversation is required")
	}
	return opts, nil
}

func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		if err := os.Setenv("CONFIG_PATH", opts.configPath); err != nil {
			return nil, err
		}
		if err := config.Load(); err != nil {
			return nil, err
		}
		cfg = config.Get()
	} else {
		cfg = config.Default()
	}

	if opts.seedFile != "" {
		cfg.Database.Driver = config.DriverMemory
		cfg.Database.Memory.SeedFile = opts.seedFile
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	// stdout 只留給結果
	if opts.quiet {
		logger.SetOutput(io.Discard)
	} else {
		logger.SetOutput(stderr)
	}

	mode, err := sanitizer.ParseMode(opts.mode)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	if err := sanitizer.CheckConfirmation(mode, opts.dryRun, opts.confirm); err != nil {
		fmt.Fprintf(stderr, "error: %v (pass --yes or --dry-run)\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitRun
	}
	defer func() { _ = a.Close(context.Background()) }()

	res, err := a.Service.Run(ctx, sanitizer.RunRequest{
		ConversationID: opts.conversationID,
		Mode:           mode,
		ActorID:        opts.actor,
		DryRun:         opts.dryRun,
		Source:         "cli",
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitRun
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitRun
	}
	return exitOK
}
