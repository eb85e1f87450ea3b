package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/config"
	"github.com/vrtuned-go/vrtuned/internal/engine"
	"github.com/vrtuned-go/vrtuned/internal/notify"
	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/web"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/vrtuned/config.yaml", "config file path")
	showVersion := flag.Bool("version", false, "print version")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
		config.Set(cfg)
	}

	log.Printf("vrtuned %s starting", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(sysfs.NewOS(), engine.WithHistorySize(cfg.History.Size))
	if err := eng.Initialize(ctx); err != nil {
		log.Fatalf("detection failed: %v", err)
	}

	g, err := cfg.Tuning.Global()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := eng.ApplyAll(ctx, g); err != nil {
		log.Fatalf("initial apply: %v", err)
	}

	srv := web.NewServer(eng, version, *configPath)
	srv.SetStaticFS(web.EmbeddedStaticFS())
	go func() {
		if err := srv.Start(cfg.Web.ListenAddr); err != nil {
			log.Fatalf("web server: %v", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Printf("shutdown signal received")
		cancel()
	}()

	// Telemetry loop; returns once the context is cancelled.
	_ = eng.Run(ctx)

	// Put the OS back the way we found it before exiting.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	notify.Send(shutdownCtx, notify.Event{Event: notify.EventShutdown, Message: "vrtuned stopping"})
	if err := eng.ResetAll(shutdownCtx); err != nil {
		log.Printf("reset on shutdown: %v", err)
	}
	eng.StopAll()
	log.Printf("vrtuned stopped")
}
