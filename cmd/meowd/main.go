package main

import (
	"context"
	"flag"
	"fmt"
	golog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/nicolagi/meow/server"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/meow/meowd.config")
	configFile := flag.String("config", defaultConfigFile, "location of configuration file")
	flag.Parse()

	configRequired := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configRequired = true
		}
	})

	// A missing .env file is fine, the environment may be set up already.
	_ = godotenv.Load()

	config, err := loadConfig(*configFile, configRequired)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Could not load configuration")
	}
	if err := config.applyEnvironment(os.LookupEnv); err != nil {
		log.WithField("err", err).Fatal("Could not apply environment")
	}
	config.applyDefaultsForMissingProperties()
	if err := config.validate(); err != nil {
		log.WithField("err", err).Fatal("Invalid configuration")
	}

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	cleanup := redirectLogging(config)
	defer cleanup()

	list, err := config.wordList()
	if err != nil {
		log.WithField("err", err).Fatal("Invalid configuration")
	}

	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	store, closeStore, err := newStore(ctx, config)
	cancel()
	if err != nil {
		log.WithField("err", err).Fatal("Could not set up storage")
	}
	defer closeStore()

	srv, err := server.New(
		server.WithAddress(config.Listen),
		server.WithBaseURL(config.baseURL()),
		server.WithStore(store),
		server.WithWordList(list),
		server.WithKeyLength(*config.KeyLength),
		server.WithChunkSize(config.ChunkSize),
		server.WithQueueDepth(*config.QueueDepth),
	)
	if err != nil {
		log.WithField("err", err).Fatal("Could not create server")
	}
	addr, err := srv.Listen()
	if err != nil {
		log.WithField("err", err).Fatal("Could not listen")
	}
	log.WithFields(log.Fields{
		"addr":     addr,
		"base_url": config.BaseURL,
	}).Info("Listening")

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		log.WithField("signal", sig).Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithField("err", err).Warn("Could not shut down cleanly")
		}
	}()

	if err := srv.Serve(); err != nil {
		log.WithField("err", err).Error("Could not serve")
	}
}

func redirectLogging(c *config) (cleanup func()) {
	golog.SetOutput(log.StandardLogger().Writer())
	if c.LogPath == "" {
		return func() {}
	}
	pathname := os.ExpandEnv(c.LogPath)
	logger := log.WithField("pathname", pathname)
	f, err := os.OpenFile(pathname, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		logger.WithField("err", err).Fatal("Could not open log file")
	}
	logger.Info("Lines after this one will be logged to a file")
	log.SetOutput(f)
	return func() {
		if err := f.Close(); err != nil {
			// Can't use the logger here!
			_, _ = fmt.Fprintf(os.Stderr, "Could not close log file cleanly %q: %v", pathname, err)
		}
	}
}
