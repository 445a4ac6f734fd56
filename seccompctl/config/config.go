// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the global configuration of seccompctl.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/walteh/bpfsandbox/pkg/log"
)

// Config is the global configuration, shared by every subcommand.
type Config struct {
	// Debug enables debug logging.
	Debug bool

	// LogFormat is "text" or "json".
	LogFormat string

	// LogFile is where log output goes. Empty means stderr.
	LogFile string

	// Verify checks every compiled program against its policy.
	Verify bool

	// Quiet suppresses informational logging.
	Quiet bool

	// CacheDir holds verification records. Empty disables the cache.
	CacheDir string
}

// RegisterFlags registers the global flags on fs.
func RegisterFlags(fs *flag.FlagSet) {
	fs.Bool("debug", false, "enable debug logging.")
	fs.String("log-format", "text", "log format: text (default) or json.")
	fs.String("log", "", "file path where logs are appended; empty means stderr.")
	fs.Bool("verify", false, "verify compiled programs against their policies.")
	fs.Bool("quiet", false, "suppress informational logging.")
	fs.String("cache-dir", defaultCacheDir(), "directory for verification records; empty disables caching.")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "seccompctl")
}

// NewFromFlags builds a Config from the parsed flags in fs.
func NewFromFlags(fs *flag.FlagSet) (*Config, error) {
	c := &Config{}
	var err error
	get := func(name string) flag.Getter {
		f := fs.Lookup(name)
		if f == nil {
			err = fmt.Errorf("flag %q not registered", name)
			return nil
		}
		return f.Value.(flag.Getter)
	}
	getBool := func(name string) bool {
		if g := get(name); g != nil {
			return g.Get().(bool)
		}
		return false
	}
	getString := func(name string) string {
		if g := get(name); g != nil {
			return g.Get().(string)
		}
		return ""
	}

	c.Debug = getBool("debug")
	c.LogFormat = getString("log-format")
	c.LogFile = getString("log")
	c.Verify = getBool("verify")
	c.Quiet = getBool("quiet")
	c.CacheDir = getString("cache-dir")
	if err != nil {
		return nil, err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return c, nil
}

// Apply configures the global logger.
func (c *Config) Apply() error {
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		log.SetTarget(f)
	}
	switch {
	case c.Debug:
		log.SetLevel(log.Debug)
	case c.Quiet:
		log.SetLevel(log.Warning)
	default:
		log.SetLevel(log.Info)
	}
	log.Log().SetJSON(c.LogFormat == "json")
	return nil
}
