// Package resolver maps free-text queries to published catalog records.
//
// A query is first looked up as a stored term. On a miss the full name list
// is offered to the oracle, and a confirmed answer is learned as a synonym
// so the next identical query never reaches the oracle.
package resolver

import (
	"context"
	"strings"
	"time"

	"animefinder/internal/catalog"
	"animefinder/internal/oracle"
	"animefinder/internal/telemetry"
	logx "animefinder/pkg/logx"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Store is the subset of storage.Store the resolver needs.
type Store interface {
	FindByTerm(ctx context.Context, term string) (catalog.Anime, bool, error)
	ListAllNames(ctx context.Context) ([]string, error)
	AddSynonym(ctx context.Context, name, synonym string) error
}

type Config struct {
	// NegativeTTL is how long a NONE answer is remembered. Zero disables the cache.
	NegativeTTL  time.Duration
	NegativeSize int
}

type Resolver struct {
	store  Store
	oracle oracle.Oracle
	log    logx.Logger

	// negative remembers queries the oracle could not place.
	negative *expirable.LRU[string, struct{}]
	group    singleflight.Group
}

func New(store Store, o oracle.Oracle, cfg Config, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Resolver{
		store:  store,
		oracle: o,
		log:    log.With(logx.String("comp", "resolver")),
	}
	if cfg.NegativeTTL > 0 {
		size := cfg.NegativeSize
		if size <= 0 {
			size = 1024
		}
		r.negative = expirable.NewLRU[string, struct{}](size, nil, cfg.NegativeTTL)
	}
	return r
}

// Invalidate forgets remembered NONE answers. Call it when the catalog grows.
func (r *Resolver) Invalidate() {
	if r.negative != nil {
		r.negative.Purge()
	}
}

// Resolve maps query to a published record. Oracle failures degrade to
// NoMatch; only store failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Kind: NoMatch}, nil
	}

	rec, ok, err := r.store.FindByTerm(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if ok {
		return publishedOnly(rec, false, false), nil
	}

	key := catalog.NormalizeTerm(query)
	if r.negative != nil {
		if _, hit := r.negative.Get(key); hit {
			telemetry.OracleCalls.WithLabelValues("cached_none").Inc()
			return Result{Kind: NoMatch}, nil
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolveMiss(ctx, query)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (r *Resolver) resolveMiss(ctx context.Context, query string) (Result, error) {
	names, err := r.store.ListAllNames(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(names) == 0 {
		return Result{Kind: CatalogEmpty}, nil
	}

	start := time.Now()
	answer, err := r.oracle.Suggest(ctx, query, names)
	telemetry.Since(telemetry.OracleDuration, start)
	if err != nil {
		telemetry.OracleCalls.WithLabelValues("error").Inc()
		r.log.Warn("oracle failed, treating as no match", logx.String("query", query), logx.Err(err))
		return Result{Kind: NoMatch}, nil
	}
	answer = strings.TrimSpace(answer)

	if oracle.IsNone(answer) {
		telemetry.OracleCalls.WithLabelValues("none").Inc()
		if r.negative != nil {
			r.negative.Add(catalog.NormalizeTerm(query), struct{}{})
		}
		return Result{Kind: NoMatch}, nil
	}
	if !contains(names, answer) {
		telemetry.OracleCalls.WithLabelValues("invalid").Inc()
		r.log.Info("oracle answer not in catalog", logx.String("query", query), logx.String("answer", answer))
		return Result{Kind: NoMatch}, nil
	}
	telemetry.OracleCalls.WithLabelValues("match").Inc()

	rec, ok, err := r.store.FindByTerm(ctx, answer)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		// renamed or deleted since the name snapshot
		return Result{Kind: NoMatch}, nil
	}

	learned := false
	if !strings.EqualFold(query, answer) && rec.Published() {
		if err := r.store.AddSynonym(ctx, rec.Name, query); err != nil {
			r.log.Warn("learn synonym failed",
				logx.String("name", rec.Name), logx.String("synonym", query), logx.Err(err))
		} else {
			learned = true
			telemetry.SynonymsLearned.Inc()
			r.log.Info("synonym learned", logx.String("name", rec.Name), logx.String("synonym", query))
		}
	}
	return publishedOnly(rec, true, learned), nil
}

// publishedOnly turns a pending hit into NoMatch: there is no channel post
// to deliver yet.
func publishedOnly(rec catalog.Anime, viaOracle, learned bool) Result {
	if !rec.Published() {
		return Result{Kind: NoMatch}
	}
	return Result{Kind: Match, Anime: rec, ViaOracle: viaOracle, Learned: learned}
}

func contains(names []string, s string) bool {
	for _, n := range names {
		if n == s {
			return true
		}
	}
	return false
}
