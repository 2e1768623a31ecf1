package stamper

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Stamps maps workspace status keys to their values.
type Stamps map[string]interface{}

// Load reads workspace status files and merges them into one Stamps. Each
// line is "KEY VALUE" split on the first space; lines without a space are
// skipped. Later files override earlier ones.
func Load(infoFiles ...string) (Stamps, error) {
	const errCtx = "loading stamps"

	stamps := make(Stamps)

	for _, sf := range infoFiles {
		content, err := os.ReadFile(sf) //nolint:gosec // paths from CLI flags
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		sc := bufio.NewScanner(bytes.NewReader(content))
		for sc.Scan() {
			line := strings.TrimSuffix(sc.Text(), "\r")

			key, value, ok := strings.Cut(line, " ")
			if !ok || key == "" {
				continue
			}

			stamps[key] = value
		}

		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf(
				"%s: %s: %w", errCtx, sf, err,
			)
		}
	}

	return stamps, nil
}

// Apply substitutes {VAR} placeholders in format. Unknown variables are
// preserved as-is.
func (s Stamps) Apply(format string) string {
	if len(s) == 0 || !strings.Contains(format, "{") {
		return format
	}

	return fasttemplate.ExecuteStringStd(
		format, "{", "}", s,
	)
}

// ApplyAll stamps every format and returns the results in order.
func (s Stamps) ApplyAll(formats []string) []string {
	out := make([]string, len(formats))

	for idx, format := range formats {
		out[idx] = s.Apply(format)
	}

	return out
}
