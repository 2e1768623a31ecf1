package overrides

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

var _ pflag.Value = (*Flag)(nil)

// Flag collects repeatable --override arguments. Set only checks the
// tag=digest shape; full validation happens in Table.Seed once stamping has
// been applied.
type Flag []string

// String implements pflag.Value.
func (f *Flag) String() string {
	return "[" + strings.Join(*f, ",") + "]"
}

// Set implements pflag.Value.
func (f *Flag) Set(value string) error {
	if strings.Count(value, "=") != 1 {
		return fmt.Errorf(
			"%w: override must be tag=digest, got %q",
			ErrMalformedOverride, value,
		)
	}

	*f = append(*f, strings.TrimSpace(value))

	return nil
}

// Type implements pflag.Value.
func (f *Flag) Type() string {
	return "tag=digest"
}
