package search

import (
	"time"

	"go.uber.org/zap"
)

// DuplicatePolicy decides what happens when a generated state is already
// known to the registry.
type DuplicatePolicy string

const (
	// DuplicatesAllow treats every generated state as a new node (tree search).
	DuplicatesAllow DuplicatePolicy = "allow"
	// DuplicatesIgnore drops generated states that are already registered.
	DuplicatesIgnore DuplicatePolicy = "ignore"
	// DuplicatesReparent keeps the cheaper of the known and the new path,
	// moving the known node under the new parent and reopening it if it was
	// already expanded.
	DuplicatesReparent DuplicatePolicy = "reparent"
)

// Options holds the scalar settings of a search.
type Options struct {
	Parallelism     int
	Seed            uint64
	Timeout         time.Duration
	NodeTimeout     time.Duration
	Duplicates      DuplicatePolicy
	EagerSolutions  bool
	// VerifyGenerator generates successors twice per expansion and fails
	// the search if the two results differ.
	VerifyGenerator bool
	Logger          *zap.Logger
	RunID           string
}

// Option configures a search.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Parallelism: 1,
		Duplicates:  DuplicatesAllow,
		Logger:      zap.NewNop(),
	}
}

// WithParallelism sets how many evaluations and expansions may run at once.
// Values below 1 mean 1.
func WithParallelism(n int) Option {
	return func(o *Options) {
		if n < 1 {
			n = 1
		}
		o.Parallelism = n
	}
}

// WithSeed sets the seed handed to randomized strategies.
func WithSeed(seed uint64) Option {
	return func(o *Options) { o.Seed = seed }
}

// WithTimeout sets the global deadline, measured from activation.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithNodeTimeout bounds each evaluation and each successor generation.
func WithNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.NodeTimeout = d }
}

// WithDuplicates sets the duplicate policy.
func WithDuplicates(p DuplicatePolicy) Option {
	return func(o *Options) { o.Duplicates = p }
}

// WithEagerSolutions reports goal nodes as soon as they are generated rather
// than when they are selected. This gives up A* optimality.
func WithEagerSolutions() Option {
	return func(o *Options) { o.EagerSolutions = true }
}

// WithGeneratorCheck enables VerifyGenerator.
func WithGeneratorCheck() Option {
	return func(o *Options) { o.VerifyGenerator = true }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(o *Options) { o.RunID = id }
}
