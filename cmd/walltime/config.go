package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// applyConfig reads a YAML file whose keys are flag names and sets every
// flag that was not given on the command line.
func applyConfig(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	values := make(map[string]interface{})

	err = yaml.Unmarshal(data, &values)
	if err != nil {
		return err
	}

	return setFlags(flag.CommandLine, values)
}

func setFlags(fs *flag.FlagSet, values map[string]interface{}) error {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	for name, v := range values {
		if name == "config" {
			return fmt.Errorf("config files cannot name another config file")
		}

		if fs.Lookup(name) == nil {
			return fmt.Errorf("unknown key %q", name)
		}

		if explicit[name] {
			continue
		}

		err := fs.Set(name, fmt.Sprint(v))
		if err != nil {
			return fmt.Errorf("key %q: %w", name, err)
		}
	}

	return nil
}
