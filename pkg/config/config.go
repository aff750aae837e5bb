// Package config loads runtime-level process settings (channel directory,
// default interpreter, listen addresses, image cache path). The ranges of
// the Transport's configure options are validated by
// rtctransport.TransportConfig.Validate, not here.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Config holds process-level runtime settings, loaded from a .env-style
// file the same way the relay this runtime is descended from did.
type Config struct {
	// ChannelDir is the directory IPC discovery files live under.
	ChannelDir string
	// Interpreter is the default worker executable for multiprocess nodes,
	// overridable via RUNTIME_INTERPRETER.
	Interpreter string
	// SignalingWSAddr is the listen address for the JSON-RPC/WebSocket surface.
	SignalingWSAddr string
	// SignalingGRPCAddr is the listen address for the gRPC bidi-stream surface.
	SignalingGRPCAddr string
	// ImageCachePath is the sqlite file backing the optional Docker image cache.
	ImageCachePath string
}

// Load reads configuration from a .env-style file, falling back to defaults
// for anything absent.
func Load(envPath string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}

		switch key {
		case "channel_dir":
			cfg.ChannelDir = decoded
		case "interpreter":
			cfg.Interpreter = decoded
		case "signaling_ws_addr":
			cfg.SignalingWSAddr = decoded
		case "signaling_grpc_addr":
			cfg.SignalingGRPCAddr = decoded
		case "image_cache_path":
			cfg.ImageCachePath = decoded
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env file: %w", err)
	}

	if v := os.Getenv("RUNTIME_INTERPRETER"); v != "" {
		cfg.Interpreter = v
	}

	return cfg, cfg.Validate()
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		ChannelDir:         "/tmp/iceoryx2",
		Interpreter:        "python",
		SignalingWSAddr:    ":8443",
		SignalingGRPCAddr:  ":8444",
		ImageCachePath:     "imagecache.db",
	}
}

// Validate checks required fields are present and sane.
func (c *Config) Validate() error {
	if c.ChannelDir == "" {
		return fmt.Errorf("missing channel_dir")
	}
	if c.Interpreter == "" {
		return fmt.Errorf("missing interpreter")
	}
	return nil
}
