package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/johntylernyc/heatline/internal/logging"
	"github.com/johntylernyc/heatline/pkg/server"
)

func main() {
	var (
		host          string
		port          int
		portFile      string
		logFile       string
		debugLevel    string
		turnTimeoutMs int
		gracePeriodMs int
		roomTTL       time.Duration
		sweepInterval time.Duration
		seed          int64
	)
	flag.StringVar(&host, "host", "127.0.0.1", "Host to listen on")
	flag.IntVar(&port, "port", 8080, "Port to listen on (0 for random free port)")
	flag.StringVar(&portFile, "portfile", "", "If set, write selected port to this file")
	flag.StringVar(&logFile, "logfile", "", "Rotating log file path (empty = stdout only)")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.IntVar(&turnTimeoutMs, "turntimeoutms", 30000, "Default phase deadline in milliseconds (0 = untimed)")
	flag.IntVar(&gracePeriodMs, "graceperiodms", 30000, "How long an empty room survives, in milliseconds")
	flag.DurationVar(&roomTTL, "roomttl", time.Hour, "Idle age at which rooms are reclaimed")
	flag.DurationVar(&sweepInterval, "sweepinterval", 5*time.Minute, "How often to sweep idle rooms")
	flag.Int64Var(&seed, "seed", 0, "Deterministic RNG seed for match decks (0 = random)")
	flag.Parse()

	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:    logFile,
		DebugLevel: debugLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logBackend.Close()
	log := logBackend.Logger("SRVR")

	if seed == 0 {
		// Allow env override for convenience
		if env := os.Getenv("HEATLINE_SEED"); env != "" {
			if v, err := strconv.ParseInt(env, 10, 64); err == nil {
				seed = v
			}
		}
	}

	srv := server.NewServer(server.Config{
		TurnTimeout:   time.Duration(turnTimeoutMs) * time.Millisecond,
		GracePeriod:   time.Duration(gracePeriodMs) * time.Millisecond,
		RoomTTL:       roomTTL,
		SweepInterval: sweepInterval,
		Seed:          seed,
		Log:           log,
	})
	defer srv.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen: %v\n", err)
		os.Exit(1)
	}
	if portFile != "" {
		_, p, _ := net.SplitHostPort(lis.Addr().String())
		_ = os.WriteFile(portFile, []byte(p), 0600)
	}
	log.Infof("listening on %s", lis.Addr())

	httpSrv := &http.Server{Handler: mux}
	errC := make(chan error, 1)
	go func() { errC <- httpSrv.Serve(lis) }()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errC:
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("serve error: %v", err)
			os.Exit(1)
		}
	case sig := <-sigC:
		log.Infof("received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}
}
