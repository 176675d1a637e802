// Package target maps target names to architecture descriptions.
package target

import (
	"fmt"
	"sort"
	"strings"

	"octet/internal/codegen"
	"octet/internal/target/mos6502"
	"octet/internal/target/z80"
)

var builders = map[string]func() *codegen.Architecture{
	z80.Name:     z80.New,
	mos6502.Name: mos6502.New,
}

var aliases = map[string]string{
	"mos6502": mos6502.Name,
	"z80a":    z80.Name,
}

// Resolve returns a validated architecture for name. Names are matched
// case-insensitively and a few common aliases are accepted.
func Resolve(name string) (*codegen.Architecture, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	build, ok := builders[key]
	if !ok {
		return nil, fmt.Errorf("unsupported target %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	arch := build()
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	return arch, nil
}

// Names lists the supported targets in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
