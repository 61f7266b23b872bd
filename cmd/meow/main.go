package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/nicolagi/meow/client"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	defaultURL := os.Getenv("MEOW_URL")
	baseURL := flag.String("url", defaultURL, "paste server `URL`, defaults to $MEOW_URL")
	id := flag.String("get", "", "write the paste with this `identifier` to standard output")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "usage: meow [-url URL] [file]\n       meow [-url URL] -get ID\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	if *baseURL == "" {
		log.Fatal("No server URL, use -url or set MEOW_URL")
	}
	c, err := client.New(*baseURL)
	if err != nil {
		log.WithField("err", err).Fatal("Could not create client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *id != "" {
		if flag.NArg() != 0 {
			flag.Usage()
			os.Exit(2)
		}
		if err := fetch(ctx, c, *id, os.Stdout); err != nil {
			if errors.Is(err, client.ErrNotFound) {
				log.WithField("id", *id).Fatal("No such paste")
			}
			log.WithField("err", err).Fatal("Could not fetch paste")
		}
		return
	}

	var src io.Reader = os.Stdin
	size := int64(-1)
	switch flag.NArg() {
	case 0:
	case 1:
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.WithField("err", err).Fatal("Could not open file")
		}
		defer func() {
			_ = f.Close()
		}()
		if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
			size = info.Size()
		}
		src = f
	default:
		flag.Usage()
		os.Exit(2)
	}
	pasted, err := c.Paste(ctx, src, size)
	if err != nil {
		log.WithField("err", err).Fatal("Could not paste")
	}
	fmt.Println(pasted)
}

func fetch(ctx context.Context, c *client.Client, id string, w io.Writer) error {
	body, size, err := c.Fetch(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		_ = body.Close()
	}()
	n, err := io.Copy(w, body)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"id":      id,
		"size":    size,
		"written": n,
	}).Debug("Fetched")
	return nil
}
