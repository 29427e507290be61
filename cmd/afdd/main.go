// Command afdd is the AFD daemon entrypoint: it claims a working
// directory, wires the configured hosts and directories into a
// supervisor, and runs until SIGINT/SIGTERM asks it to stop. SIGHUP is
// ignored here rather than handled, matching the supervisor's own
// "SIGHUP is ignored by the supervisor" rule (§4.6); only the command
// channel's START_AMG/STOP_AMG opcodes change run state at runtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/afdist/afd/internal/logx"
	"github.com/afdist/afd/internal/supervisor"
)

func main() {
	var (
		workDir    = flag.String("w", ".", "working directory (fifo/, log/, archive/, files/, etc/)")
		rescan     = flag.Duration("rescan-time", 10*time.Second, "main loop tick interval, AFD_RESCAN_TIME")
		heartbeat  = flag.Duration("heartbeat-timeout", 2*time.Minute, "process-table heartbeat staleness threshold")
		enableAFDD = flag.Bool("enable-afdd", true, "serve the /metrics status-query endpoint")
		afddAddr   = flag.String("afdd-addr", ":4024", "address the status-query endpoint listens on")
		logLevel   = flag.String("log-level", "INFO", "minimum log sign to emit (DEBUG, CONFIG, INFO, WARN, ERROR, OFFLINE, FATAL)")
	)
	flag.Parse()

	if sign, ok := logx.ParseSign(*logLevel); ok {
		logx.SetLevel(sign)
	} else {
		fmt.Fprintf(os.Stderr, "afdd: unrecognised -log-level %q\n", *logLevel)
		os.Exit(2)
	}

	absWorkDir, err := filepath.Abs(*workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "afdd: %v\n", err)
		os.Exit(1)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	hosts, dirs, err := loadLayout(bootCtx, filepath.Join(absWorkDir, "etc", "afd_directories.json"))
	bootCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "afdd: loading directory/host layout: %v\n", err)
		os.Exit(1)
	}

	sup, err := supervisor.Start(context.Background(), supervisor.Config{
		WorkDir:          absWorkDir,
		RescanTime:       *rescan,
		HeartbeatTimeout: *heartbeat,
		Hosts:            hosts,
		Directories:      dirs,
		EnableAFDD:       *enableAFDD,
		AFDDAddr:         *afddAddr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "afdd: startup failed: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logx.Infof(nil, "received %s, requesting shutdown", sig)
		sup.RequestShutdown()
	}()

	if err := sup.Run(context.Background()); err != nil {
		logx.Fatalf(nil, "afdd exiting: %v", err)
		os.Exit(1)
	}
}
