package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
)

// Exit codes per spec.md §6: 0 clean shutdown, 1 config error,
// 2 bind failure, 3 fatal persistence error.
const (
	exitOK               = 0
	exitConfigError      = 1
	exitBindFailure      = 2
	exitFatalPersistence = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	os.Setenv("LOG_LEVEL", cfg.LogLevel)

	logger, err := common.NewLogger("directory")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	defer logger.Sync()

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to construct directory server", zap.Error(err))
		return exitFatalPersistence
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := server.Run(ctx); err != nil {
		select {
		case <-ctx.Done():
			return exitOK
		default:
		}
		logger.Error("directory server exited with error", zap.Error(err))
		return exitBindFailure
	}
	return exitOK
}
