package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/treemana/sieve/cache"
	"github.com/treemana/sieve/upstream"
)

const DefaultPath = "sieve.yaml"

// Option is the content of the configuration file. JSON files are accepted
// too, JSON being a subset of YAML.
type Option struct {
	// Hosts are the addresses to listen on, see BindTargets when empty.
	Hosts []Target `yaml:"hosts"`

	// Denylist file path, the bundled list is used when empty.
	Denylist string `yaml:"denylist"`

	Log struct {
		File    string `yaml:"file"`
		STDOUT  bool   `yaml:"stdout"`
		Verbose bool   `yaml:"verbose"`
		JSON    bool   `yaml:"json"`
	} `yaml:"log"`

	Cache struct {
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"cache"`

	Upstream struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"upstream"`
}

// Default returns the configuration used when no file is present.
func Default() *Option {
	var o Option
	o.Log.STDOUT = true
	o.Cache.SweepInterval = cache.DefaultSweepInterval
	o.Upstream.Timeout = upstream.DefaultTimeout
	return &o
}

// Load reads path. A missing file yields Default() and no error; a file that
// does not parse yields Default() together with the parse error so the
// caller can warn and keep going.
func Load(path string) (*Option, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("read config %s: %w", path, err)
	}

	return Parse(raw)
}

func Parse(raw []byte) (*Option, error) {
	o := Default()
	if err := yaml.Unmarshal(raw, o); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}

	if o.Cache.SweepInterval <= 0 {
		o.Cache.SweepInterval = cache.DefaultSweepInterval
	}

	if o.Upstream.Timeout <= 0 {
		o.Upstream.Timeout = upstream.DefaultTimeout
	}

	return o, nil
}
