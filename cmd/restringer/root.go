package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/t14raptor/go-fast/generator"
	"github.com/t14raptor/go-fast/parser"
	"go.uber.org/zap"

	"github.com/deobjs/restringer/analyze"
	"github.com/deobjs/restringer/cache"
	"github.com/deobjs/restringer/loader"
	"github.com/deobjs/restringer/pipeline"
	"github.com/deobjs/restringer/rules"
	"github.com/deobjs/restringer/sandbox"
	"github.com/deobjs/restringer/syntax"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RESTRINGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "restringer [file|-]",
		Short: "Deobfuscate a JavaScript source file",
		Long: "restringer repeatedly rewrites a script's syntax tree to strip\n" +
			"obfuscation: constants fold, resolvable calls inline, dead branches\n" +
			"and breakpoint traps disappear. The output is behavior-preserving\n" +
			"source text.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(v, args)
		},
	}

	flags := cmd.Flags()
	flags.String("url", "", "fetch the script from a URL instead of a file")
	flags.StringP("output", "o", "", "write result to file (default stdout)")
	flags.Int("max-passes", 0, "cap full rule passes (0 = default ceiling)")
	flags.Duration("eval-timeout", sandbox.DefaultLimits.Timeout, "per-evaluation wall clock budget")
	flags.BoolP("verbose", "v", false, "log rule activity")
	for _, name := range []string{"url", "output", "max-passes", "eval-timeout", "verbose"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func run(v *viper.Viper, args []string) error {
	log, err := buildLogger(v.GetBool("verbose"))
	if err != nil {
		return err
	}
	defer log.Sync()

	src, err := acquireScript(v, args, log)
	if err != nil {
		return err
	}

	out, res, err := deobfuscate(src, v, log)
	if err != nil {
		return err
	}
	log.Info("run finished",
		zap.String("status", res.Status.String()),
		zap.Int("passes", res.Passes),
		zap.Int("changes", res.Changes))

	if path := v.GetString("output"); path != "" {
		return os.WriteFile(path, []byte(out), 0o644)
	}
	fmt.Println(out)
	return nil
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

func acquireScript(v *viper.Viper, args []string, log *zap.Logger) (string, error) {
	if rawURL := v.GetString("url"); rawURL != "" {
		fetcher, err := loader.New(log)
		if err != nil {
			return "", err
		}
		return fetcher.Fetch(rawURL)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("no input: pass a file path, -, or --url")
	}
	return loader.Load(args[0])
}

// deobfuscate parses the script, drives the rule list to a fixpoint and
// prints the result back to source.
func deobfuscate(src string, v *viper.Viper, log *zap.Logger) (string, pipeline.Result, error) {
	prog, err := parser.ParseFile(src)
	if err != nil {
		return "", pipeline.Result{}, fmt.Errorf("parse error: %w", err)
	}
	tree := syntax.Build(prog, src)

	store := cache.New()
	limits := sandbox.DefaultLimits
	if d := v.GetDuration("eval-timeout"); d > 0 {
		limits.Timeout = d
	}
	sb := sandbox.New(store,
		sandbox.WithLimits(limits),
		sandbox.WithLogger(log))
	collector := analyze.NewCollector(store)

	driver := pipeline.New([]pipeline.Rule{
		rules.NewStripDebugger(),
		rules.NewConstantFold(sb),
		rules.NewDeadBranches(),
		rules.NewInlineCalls(collector, sb),
	}, store, pipeline.Options{MaxPasses: v.GetInt("max-passes")}, log)

	res := driver.Run(context.Background(), tree)
	return generator.Generate(tree.Program()), res, nil
}
