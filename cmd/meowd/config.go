package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/nicolagi/meow/server"
	"github.com/nicolagi/meow/words"
	"github.com/rogpeppe/rjson"
)

type config struct {
	Listen     string  `json:"listen"`
	BaseURL    string  `json:"base_url"`
	KeyLength  *int    `json:"key_length"`
	Wordlist   string  `json:"wordlist"`
	ChunkSize  int     `json:"chunk_size"`
	QueueDepth *int    `json:"queue_depth"`
	RateLimit  float64 `json:"rate_limit"`
	RateBurst  int     `json:"rate_burst"`
	Debug      bool    `json:"debug"`
	LogPath    string  `json:"log_path"`

	Storage struct {
		Type string `json:"type"`

		// Properties for "disk" type.
		Root string `json:"root"`

		// Properties for "bolt" type.
		Path string `json:"path"`

		// Properties for "s3" and "minio" types.
		Endpoint        string `json:"endpoint"`
		Region          string `json:"region"`
		Bucket          string `json:"bucket"`
		AccessKeyID     string `json:"access_key_id"`
		SecretAccessKey string `json:"secret_access_key"`
		UseSSL          bool   `json:"use_ssl"`

		// Properties for "s3" type only.
		Profile string `json:"profile"`

		// Optional directory caching values of any type but "disk".
		Cache string `json:"cache"`
	} `json:"storage"`
}

// loadConfig reads the configuration file at pathname. If the file does not
// exist and is not required, the configuration comes from the environment
// only.
func loadConfig(pathname string, required bool) (*config, error) {
	f, err := os.Open(pathname)
	if errors.Is(err, os.ErrNotExist) && !required {
		return &config{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	var c *config
	if err := rjson.NewDecoder(f).Decode(&c); err != nil {
		return nil, fmt.Errorf("%s: %w", pathname, err)
	}
	if c == nil {
		c = &config{}
	}
	return c, nil
}

// applyEnvironment overrides properties with the variables the service was
// traditionally deployed with.
func (c *config) applyEnvironment(lookup func(string) (string, bool)) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"BASE_URL", &c.BaseURL},
		{"S3_ENDPOINT", &c.Storage.Endpoint},
		{"S3_BUCKET", &c.Storage.Bucket},
		{"S3_REGION", &c.Storage.Region},
		{"S3_ACCESS_KEY_ID", &c.Storage.AccessKeyID},
		{"S3_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey},
		{"MEOW_STORAGE", &c.Storage.Type},
		{"MEOW_ROOT", &c.Storage.Root},
	}
	for _, s := range strs {
		if v, ok := lookup(s.name); ok {
			*s.dst = v
		}
	}
	if v, ok := lookup("PORT"); ok {
		c.Listen = "[::]:" + v
	}
	if v, ok := lookup("MEOW_KEY_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEOW_KEY_LENGTH: %w", err)
		}
		c.KeyLength = &n
	}
	if v, ok := lookup("MEOW_DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MEOW_DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

func (c *config) applyDefaultsForMissingProperties() {
	if c.Listen == "" {
		c.Listen = "[::]:8080"
	}
	if c.KeyLength == nil {
		n := server.DefaultKeyLength
		c.KeyLength = &n
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = server.DefaultChunkSize
	}
	if c.QueueDepth == nil {
		depth := server.DefaultQueueDepth
		c.QueueDepth = &depth
	}
	if c.RateBurst == 0 {
		c.RateBurst = 1
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "disk"
	}
	if c.Storage.Root == "" {
		c.Storage.Root = "$HOME/lib/meow/data"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "$HOME/lib/meow/meow.db"
	}
}

// validate checks what can be checked without touching the network. The
// word list is checked against the key length separately, once loaded.
func (c *config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("base_url %q: must be an absolute URL", c.BaseURL)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size %d: must be positive", c.ChunkSize)
	}
	if *c.QueueDepth < 0 {
		return fmt.Errorf("queue_depth %d: must not be negative", *c.QueueDepth)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit %v: must not be negative", c.RateLimit)
	}
	if c.Storage.Cache != "" && c.Storage.Type == "disk" {
		return errors.New("storage: cache makes no sense for disk")
	}
	switch c.Storage.Type {
	case "disk", "bolt", "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage: bucket is required for s3")
		}
		if c.Storage.Region == "" {
			return errors.New("storage: region is required for s3")
		}
	case "minio":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return errors.New("storage: endpoint and bucket are required for minio")
		}
	default:
		return fmt.Errorf("storage type %q: must be one of disk, s3, minio, bolt, memory", c.Storage.Type)
	}
	return nil
}

func (c *config) baseURL() *url.URL {
	// Already validated.
	u, _ := url.Parse(c.BaseURL)
	return u
}

// wordList returns the word list identifiers are made of, after checking it
// is long enough for the configured key length.
func (c *config) wordList() (*words.List, error) {
	list := words.English()
	if c.Wordlist != "" {
		pathname := os.ExpandEnv(c.Wordlist)
		f, err := os.Open(pathname)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = f.Close()
		}()
		if list, err = words.Load(f); err != nil {
			return nil, fmt.Errorf("%s: %w", pathname, err)
		}
	}
	if err := list.Check(*c.KeyLength); err != nil {
		return nil, fmt.Errorf("key_length %d with %d words: %w", *c.KeyLength, list.Len(), err)
	}
	return list, nil
}

// minioEndpoint splits an endpoint that may be given as a URL, as for S3,
// into the host and whether to use TLS.
func (c *config) minioEndpoint() (host string, secure bool) {
	if strings.Contains(c.Storage.Endpoint, "://") {
		if u, err := url.Parse(c.Storage.Endpoint); err == nil {
			return u.Host, u.Scheme == "https"
		}
	}
	return c.Storage.Endpoint, c.Storage.UseSSL
}
