// Package cli defines admitd's command tree using the same
// struct-tag-driven kong style the retrieved proxy's CLI uses: each
// subcommand is a struct with a Run method, wired together by a single
// top-level CLI struct kong parses flags and arguments into.
package cli

import "github.com/alecthomas/kong"

// CLI is admitd's command tree.
type CLI struct {
	Run             Run              `kong:"cmd,help='Run the admission daemon.'"`
	GenerateConfig  GenerateConfig   `kong:"cmd,help='Print a config file with default values.'"`
	Version         kong.VersionFlag `kong:"help='Print version.',short='v'"`
}
