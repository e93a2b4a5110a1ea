// Package config loads the optional project file (quosi.toml) that lets a
// Quosi project pin an entry script and trace-server settings without
// repeating them on every CLI invocation.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileInfo is the header every quosi.toml must carry, mirroring how TQW
// files self-identify their format before the rest of the document is
// interpreted.
type FileInfo struct {
	Format string `toml:"format"`
}

const expectedFormat = "QUOSI-PROJECT"

// Server configures the optional remote trace-session API (SPEC_FULL.md
// §3.1). Every field is consumed by cmd/quosi-trace-server as the lowest-
// priority rung of its env-var/flag precedence chain.
type Server struct {
	BindAddr    string `toml:"bind_addr"`
	DBPath      string `toml:"db_path"`
	JWTSecret   string `toml:"jwt_secret"`
	TokenTTLHrs int    `toml:"token_ttl_hours"`
}

// Project is the parsed contents of a quosi.toml file.
type Project struct {
	FileInfo

	// Entry is the path to the .qsi or .bsi file to run when none is given
	// on the command line, relative to the config file's directory.
	Entry string `toml:"entry"`

	Server Server `toml:"server"`
}

// Load reads and parses a quosi.toml file at path.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Project
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if p.Format != expectedFormat {
		return nil, fmt.Errorf("config: %s: unrecognized format %q (want %q)", path, p.Format, expectedFormat)
	}
	return &p, nil
}
