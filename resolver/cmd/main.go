// Package main provides the resolver CLI that reads multi-document YAML,
// pins every image tag reference it finds to a digest and writes the
// result.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/byte4ever/imagepin/metrics"
	"github.com/byte4ever/imagepin/overrides"
	"github.com/byte4ever/imagepin/registry"
	"github.com/byte4ever/imagepin/resolver"
	"github.com/byte4ever/imagepin/stamper"
)

const envPrefix = "IMAGEPIN"

// settings keys, shared by flags, environment and config file.
const (
	keyOverrides   = "overrides"
	keyStampFiles  = "stamp-info-file"
	keyInFile      = "infile"
	keyOutFile     = "outfile"
	keyParallelism = "parallelism"
	keyResolveKeys = "resolve-keys"
	keyInsecure    = "insecure"
	keyMetricsFile = "metrics-file"
	keyVerbose     = "verbose"
)

type options struct {
	overrides   []string
	stampFiles  []string
	inFile      string
	outFile     string
	parallelism int
	resolveKeys bool
	insecure    bool
	metricsFile string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile  string
		override overrides.Flag
	)

	v := viper.New()

	cmd := &cobra.Command{
		Use:   "resolver",
		Short: "Pin image tag references in YAML documents to digests",
		Long: `resolver reads a stream of YAML documents separated by "---" lines,
replaces every string that is an image tag reference with the matching
repository@digest reference and writes the documents back in order.
Strings that are not references, or that cannot be resolved, are left
untouched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := options{
				overrides: append(
					v.GetStringSlice(keyOverrides), override...,
				),
				stampFiles:  v.GetStringSlice(keyStampFiles),
				inFile:      v.GetString(keyInFile),
				outFile:     v.GetString(keyOutFile),
				parallelism: v.GetInt(keyParallelism),
				resolveKeys: v.GetBool(keyResolveKeys),
				insecure:    v.GetBool(keyInsecure),
				metricsFile: v.GetString(keyMetricsFile),
				verbose:     v.GetBool(keyVerbose),
			}

			return run(
				cmd.Context(),
				opts,
				cmd.InOrStdin(),
				cmd.OutOrStdout(),
				cmd.ErrOrStderr(),
			)
		},
	}

	flags := cmd.Flags()

	flags.StringVar(
		&cfgFile, "config", "",
		"config file (yaml, json or toml)",
	)
	flags.Var(
		&override, "override",
		"pin tag to digest without a registry lookup (repeatable)",
	)
	flags.StringArray(
		keyStampFiles, nil,
		"workspace status file whose values replace {VAR} in overrides (repeatable)",
	)
	flags.String(keyInFile, "", "input YAML file path (default: stdin)")
	flags.String(keyOutFile, "", "output YAML file path (default: stdout)")
	flags.Int(
		keyParallelism, resolver.DefaultParallelism,
		"maximum concurrent registry lookups",
	)
	flags.Bool(
		keyResolveKeys, true,
		"treat mapping keys as candidate references",
	)
	flags.Bool(
		keyInsecure, false,
		"allow plain HTTP registries",
	)
	flags.String(
		keyMetricsFile, "",
		"write resolution counters to this file in text format",
	)
	flags.BoolP(keyVerbose, "v", false, "log unresolved references")

	for _, key := range []string{
		keyStampFiles, keyInFile, keyOutFile, keyParallelism,
		keyResolveKeys, keyInsecure, keyMetricsFile, keyVerbose,
	} {
		_ = v.BindPFlag(key, flags.Lookup(key)) //nolint:errcheck // flag defined above
	}

	return cmd
}

// loadConfig wires environment variables and the optional config file into
// v. Flags set on the command line take precedence over both.
func loadConfig(v *viper.Viper, cfgFile string) error {
	const errCtx = "loading config"

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}

	v.SetConfigFile(cfgFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func run(
	ctx context.Context,
	opts options,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
) error {
	const errCtx = "resolver"

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(
		stderr, &slog.HandlerOptions{Level: level},
	))

	var nameOpts []name.Option
	if opts.insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}

	stamps, err := stamper.Load(opts.stampFiles...)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	table := overrides.New()
	if err := table.Seed(
		stamps.ApplyAll(opts.overrides), nameOpts...,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	parallelism := opts.parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	reg := prometheus.NewRegistry()
	counters := metrics.NewCounters(reg)

	client := registry.NewClient(registry.NewTransport(parallelism))

	cfg := resolver.Config{
		Overrides: table,
		Resolver: resolver.NewDigestResolver(
			authn.DefaultKeychain, client, counters,
		),
		Parallelism: parallelism,
		SkipKeys:    !opts.resolveKeys,
		NameOptions: nameOpts,
		Logger:      logger,
		Metrics:     counters,
	}

	in := stdin

	if opts.inFile != "" {
		fi, err := os.Open(opts.inFile) //nolint:gosec // path from CLI flag
		if err != nil {
			return fmt.Errorf("%s: opening input: %w", errCtx, err)
		}

		defer fi.Close() //nolint:errcheck // best-effort close

		in = fi
	}

	// Input is fully resolved before the output file is created, so a parse
	// failure never truncates an existing file.
	var buf strings.Builder
	if err := resolver.ResolveImages(ctx, in, &buf, cfg); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := writeOutput(opts.outFile, stdout, buf.String()); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	logger.Debug(
		"resolution finished",
		"pinned", table.Len(),
	)

	if opts.metricsFile != "" {
		if err := metrics.WriteFile(opts.metricsFile, reg); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return nil
}

func writeOutput(path string, stdout io.Writer, data string) error {
	if path == "" {
		if _, err := io.WriteString(stdout, data); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}

		return nil
	}

	//nolint:gosec // path from CLI flag
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
