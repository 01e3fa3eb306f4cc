package solver

import (
	"context"
	"sort"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// cacheKey collapses arbitrary key material into a short stable id.
func cacheKey(parts ...string) string {
	h, _ := blake2b.New256(nil)

	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}

	return base58.Encode(h.Sum(nil)[:16])
}

// Stats reports cache effectiveness for the end-of-config log line.
type Stats struct {
	Hits   int
	Misses int
	Size   int
}

const (
	factoryCacheSize = 32
	resultCacheSize  = 256
)

// FactoryCache memoizes solver construction per (channel set,
// platform-arch) pair, so index loading is paid once per pair no
// matter how many configs and phases ask for it.
type FactoryCache struct {
	mu      sync.Mutex
	factory Factory
	cache   *lru.Cache[string, Solver]
	hits    int
	misses  int
}

func NewFactoryCache(factory Factory) (*FactoryCache, error) {
	cache, err := lru.New[string, Solver](factoryCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &FactoryCache{factory: factory, cache: cache}, nil
}

// Get returns the solver for the pair, constructing it on first use.
// The channel list is order-sensitive: a different order is a
// different solver.
func (fc *FactoryCache) Get(ctx context.Context, channels []string, platformArch string) (Solver, error) {
	key := cacheKey(append([]string{platformArch}, channels...)...)

	fc.mu.Lock()

	if sv, ok := fc.cache.Get(key); ok {
		fc.hits++
		fc.mu.Unlock()

		return sv, nil
	}

	fc.misses++
	fc.mu.Unlock()

	sv, err := fc.factory(ctx, channels, platformArch)
	if err != nil {
		return nil, err
	}

	fc.mu.Lock()
	fc.cache.Add(key, sv)
	fc.mu.Unlock()

	return sv, nil
}

func (fc *FactoryCache) Stats() Stats {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return Stats{Hits: fc.hits, Misses: fc.misses, Size: fc.cache.Len()}
}

// ResultCache memoizes run-export-bearing solves. Build and host
// requirement sets repeat across variants and outputs, and the export
// report is the expensive half of those solves. Only solvable results
// are retained: a failure may be transient (helper hiccup, timeout)
// and must be recomputed.
type ResultCache struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, *Result]
	hits   int
	misses int
}

func NewResultCache() (*ResultCache, error) {
	cache, err := lru.New[string, *Result](resultCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &ResultCache{cache: cache}, nil
}

// Key builds the memo key for one solve call. Requirement order does
// not change the answer, so lists are keyed sorted.
func (rc *ResultCache) Key(channels []string, platformArch string, reqs []string, opts SolveOptions) string {
	parts := []string{platformArch, strconv.FormatBool(opts.RunExports)}
	parts = append(parts, channels...)
	parts = append(parts, "reqs")
	parts = append(parts, sortedCopy(reqs)...)
	parts = append(parts, "constraints")
	parts = append(parts, sortedCopy(opts.Constraints)...)
	parts = append(parts, "ignore")
	parts = append(parts, sortedCopy(opts.IgnoreRunExports)...)
	parts = append(parts, "ignore-from")
	parts = append(parts, sortedCopy(opts.IgnoreRunExportsFrom)...)

	return cacheKey(parts...)
}

func (rc *ResultCache) Get(key string) (*Result, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	res, ok := rc.cache.Get(key)
	if ok {
		rc.hits++
	} else {
		rc.misses++
	}

	return res, ok
}

func (rc *ResultCache) Put(key string, res *Result) {
	if res == nil || !res.Solvable {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.cache.Add(key, res)
}

func (rc *ResultCache) Stats() Stats {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return Stats{Hits: rc.hits, Misses: rc.misses, Size: rc.cache.Len()}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)

	return out
}
