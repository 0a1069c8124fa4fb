package config

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/cohesivestack/valgo"
	"gopkg.in/yaml.v3"

	"github.com/joshjon/txconn/valgoutil"
)

type loadConfigOptions struct {
	fs *embed.FS
}

type LoadConfigOption func(*loadConfigOptions)

func WithFS(fs embed.FS) LoadConfigOption {
	return func(o *loadConfigOptions) {
		o.fs = &fs
	}
}

type Configurable interface {
	InitDefaults()
	Validation() *valgo.Validation
}

// Load reads configuration from a YAML file and/or environment variables, in
// that order, on top of out's defaults, then validates it. Param `yamlFile`
// can be left empty if environment variables are being exclusively used.
//
// Validation failures are returned as *valgo.Error.
func Load(yamlFile string, out Configurable, opts ...LoadConfigOption) error {
	var options loadConfigOptions
	for _, opt := range opts {
		opt(&options)
	}

	out.InitDefaults()

	if yamlFile != "" {
		var file io.ReadCloser
		var err error

		if options.fs != nil {
			file, err = options.fs.Open(yamlFile)
		} else {
			file, err = os.Open(yamlFile)
		}
		if err != nil {
			return fmt.Errorf("open config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err = decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode config file: %w", err)
		}
	}

	if err := env.Parse(out); err != nil {
		return fmt.Errorf("parse config environment variables: %w", err)
	}

	if err := out.Validation().ToError(); err != nil {
		return err
	}

	return nil
}

// MustLoad is Load for main packages: it prints the errors to stderr and exits
// the process when the configuration can not be loaded.
func MustLoad(yamlFile string, out Configurable, opts ...LoadConfigOption) {
	err := Load(yamlFile, out, opts...)
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Config errors:")
	var verr *valgo.Error
	if errors.As(err, &verr) {
		for _, detail := range valgoutil.GetDetails(verr) {
			fmt.Fprintf(os.Stderr, "  %s\n", detail)
		}
	} else {
		fmt.Fprintf(os.Stderr, "  %s\n", err)
	}
	os.Exit(1)
}
