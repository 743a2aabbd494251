package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/klyr/eudoxus/internal/config"
	"github.com/klyr/eudoxus/internal/eudoxus"
	"github.com/klyr/eudoxus/internal/fields"
	"github.com/klyr/eudoxus/internal/logging"
	"github.com/klyr/eudoxus/internal/normalize"
	"github.com/klyr/eudoxus/internal/observability"
)

// BuildEngine loads every declared automaton and compiles each site's rules.
// A broken automaton file does not fail the build: it is reported through
// LoadErrors and only the rules that name it are left out.
func BuildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	registry := eudoxus.NewRegistry()
	failed, err := loadAutomata(ctx, cfg, registry, logger, metrics)
	if err != nil {
		return nil, err
	}

	sites := make(map[string][]Rule, len(cfg.Sites))
	for _, site := range cfg.Sites {
		compiled := make([]Rule, 0, len(site.Rules))
		for _, raw := range site.Rules {
			if loadErr, ok := failed[raw.Automaton]; ok {
				loadErr.Rules = append(loadErr.Rules, site.Name+"/"+raw.ID)
				logger.Warn("rule disabled", "site", site.Name, "rule_id", raw.ID, "automaton", raw.Automaton)
				continue
			}
			rule, err := compileRule(raw)
			if err != nil {
				return nil, fmt.Errorf("site %s rule %s: %w", site.Name, raw.ID, err)
			}
			compiled = append(compiled, rule)
		}
		sites[site.Name] = compiled
	}

	loadErrors := make([]*LoadError, 0, len(failed))
	for _, e := range failed {
		loadErrors = append(loadErrors, e)
	}
	sort.Slice(loadErrors, func(i, j int) bool {
		return loadErrors[i].Automaton < loadErrors[j].Automaton
	})

	return &Engine{
		registry:   registry,
		sites:      sites,
		loadErrors: loadErrors,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

func loadAutomata(ctx context.Context, cfg *config.Config, registry *eudoxus.Registry, logger *slog.Logger, metrics *observability.Metrics) (map[string]*LoadError, error) {
	var (
		mu     sync.Mutex
		failed = map[string]*LoadError{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, decl := range cfg.Automata {
		decl := decl
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := cfg.ResolvePath(decl.Path)
			a, err := eudoxus.LoadFile(path)
			metrics.AutomatonLoaded(decl.Name, err)
			if err != nil {
				logger.Error("automaton load failed", "automaton", decl.Name, "path", path, "error", err)
				mu.Lock()
				failed[decl.Name] = &LoadError{Automaton: decl.Name, Path: path, Err: err}
				mu.Unlock()
				return nil
			}
			if err := registry.Register(decl.Name, a); err != nil {
				return err
			}
			logger.Info("automaton loaded",
				"automaton", decl.Name,
				"states", a.NumStates(),
				"outputs", a.NumOutputs(),
				"fingerprint", a.Fingerprint(),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return failed, nil
}

func compileRule(raw config.Rule) (Rule, error) {
	target, err := fields.ParseTarget(raw.Target)
	if err != nil {
		return Rule{}, err
	}
	policy, err := eudoxus.ParsePolicy(raw.Operator)
	if err != nil {
		return Rule{}, err
	}

	transforms := make([]normalize.Transform, 0, len(raw.Transforms))
	for _, name := range raw.Transforms {
		t, err := normalize.ParseTransform(name)
		if err != nil {
			return Rule{}, err
		}
		transforms = append(transforms, t)
	}

	return Rule{
		ID:         raw.ID,
		Target:     target,
		Policy:     policy,
		Automaton:  raw.Automaton,
		Score:      raw.Score,
		Tags:       append([]string(nil), raw.Tags...),
		Transforms: normalize.OptionsFor(transforms),
		Msg:        raw.Msg,
	}, nil
}
