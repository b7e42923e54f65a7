package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"golfer/solver"
)

type scenario struct {
	Groups      int     `yaml:"groups"`
	OfSize      int     `yaml:"of_size"`
	Rounds      int     `yaml:"rounds"`
	Leaders     bool    `yaml:"leaders"`
	TotalPeople int     `yaml:"total_people"`
	Forbidden   [][]int `yaml:"forbidden"`
	Discouraged [][]int `yaml:"discouraged"`
}

func loadScenario(path string) (*scenario, error) {
	if path == "" {
		return &scenario{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading scenario")
	}
	var sc scenario
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return nil, errors.Wrapf(err, "parsing scenario %s", path)
	}
	return &sc, nil
}

// applyScenario lets scenario values replace flag defaults; flags given on
// the command line or via GOLFER_* still win.
func applyScenario(v *viper.Viper, sc *scenario) {
	for key, val := range map[string]int{"groups": sc.Groups, "size": sc.OfSize, "rounds": sc.Rounds, "people": sc.TotalPeople} {
		if val != 0 {
			v.SetDefault(key, val)
		}
	}
	if sc.Leaders {
		v.SetDefault("leaders", true)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "golfer-tune",
		Short: "Run the round solver repeatedly and report how its results spread",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.String("scenario", "", "YAML scenario file (groups, of_size, rounds, leaders, total_people, forbidden, discouraged)")
	f.Int("groups", 4, "number of groups per round")
	f.Int("size", 4, "group size, used when --people is not set")
	f.Int("rounds", 5, "number of rounds")
	f.Int("people", 0, "total people (defaults to groups*size)")
	f.Bool("leaders", false, "give the first people a fixed group each")
	f.Int("runs", 20, "number of solver runs per parameter set")
	f.String("generations", "30", "comma-separated generation budgets")
	f.String("descendants", "100", "comma-separated elite caps")
	f.Int("workers", 1, "parallel candidate expansion")
	f.Bool("print", false, "render the best schedule of the last parameter set")
	f.String("log-level", "warn", "log level")

	v.SetEnvPrefix("GOLFER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	cobra.CheckErr(v.BindPFlags(f))
	return cmd
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	sc, err := loadScenario(v.GetString("scenario"))
	if err != nil {
		return err
	}
	applyScenario(v, sc)

	cfg := solver.Config{
		Groups:            v.GetInt("groups"),
		OfSize:            v.GetInt("size"),
		Rounds:            v.GetInt("rounds"),
		Leaders:           v.GetBool("leaders"),
		TotalPeople:       v.GetInt("people"),
		ForbiddenPairs:    sc.Forbidden,
		DiscouragedGroups: sc.Discouraged,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	runs := v.GetInt("runs")
	if runs <= 0 {
		return errors.Errorf("runs must be positive, got %d", runs)
	}

	generations, err := parseIntList(v.GetString("generations"))
	if err != nil {
		return errors.Wrap(err, "generations")
	}
	descendants, err := parseIntList(v.GetString("descendants"))
	if err != nil {
		return errors.Wrap(err, "descendants")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "People: %d, Groups: %d, Rounds: %d, Leaders: %v\n", cfg.People(), len(solver.GroupSizes(cfg.Groups, cfg.People())), cfg.Rounds, cfg.Leaders)
	fmt.Fprintf(out, "Forbidden: %d, Discouraged: %d\n", len(cfg.ForbiddenPairs), len(cfg.DiscouragedGroups))
	fmt.Fprintf(out, "Runs per config: %d\n\n", runs)

	var last []runResult
	var lastSum summary
	for _, gens := range generations {
		for _, desc := range descendants {
			params := solver.DefaultParams
			params.Generations = gens
			params.MaxDescendants = desc
			params.Workers = v.GetInt("workers")

			results, err := runAll(ctx, cfg, params, runs)
			if err != nil {
				return err
			}
			sum := summarize(results)
			printStats(out, fmt.Sprintf("generations=%d descendants=%d workers=%d", gens, desc, params.Workers), sum)
			last, lastSum = results, sum
		}
	}

	if v.GetBool("print") && lastSum.best >= 0 {
		best := last[lastSum.best]
		fmt.Fprintln(out, renderSchedule(best.rounds, best.scores, cfg.Leaders))
	}
	return nil
}

func runAll(ctx context.Context, cfg solver.Config, params solver.Params, runs int) ([]runResult, error) {
	results := make([]runResult, 0, runs)
	for r := range runs {
		rng := rand.New(rand.NewSource(int64(r * 31337)))
		start := time.Now()
		res, err := solver.Solve(ctx, cfg, params, rng, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "run %d", r)
		}
		results = append(results, runResult{rounds: res.Rounds, scores: res.Scores, elapsed: time.Since(start)})
	}
	return results, nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
