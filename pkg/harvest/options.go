package harvest

import "time"

// Config holds Harvester configuration.
type Config struct {
	// Retry
	PageRetries      int           // Page fetch retries before treating the set as exhausted
	ReacquireRetries int           // Cursor advance / listing re-acquisition retries before aborting
	RetryBackoff     time.Duration // Initial backoff between retries
	MaxBackoff       time.Duration // Backoff ceiling

	// Traversal
	MaxPages int           // Max pages to fetch (0 = unlimited)
	Delay    time.Duration // Delay between pages

	// Records
	Enricher    DetailEnricher
	Transform   func(Record) (Record, error) // Applied to every resolved record before persisting
	Workers     int      // Enrichment workers within a page (1 = sequential)
	DedupeField string   // Natural key used to drop repeated records
	DedupeSeed  []string // Keys already present at the destination

	// Resume
	Checkpoint    CheckpointStore
	CheckpointKey string
}

// DefaultConfig returns sensible harvester defaults.
func DefaultConfig() Config {
	return Config{
		PageRetries:      3,
		ReacquireRetries: 3,
		RetryBackoff:     time.Second,
		MaxBackoff:       30 * time.Second,
		Workers:          1,
	}
}

// Option configures a Harvester.
type Option func(*Config)

// WithEnricher sets the detail enricher for link-only handles.
func WithEnricher(e DetailEnricher) Option {
	return func(c *Config) {
		c.Enricher = e
	}
}

// WithTransform maps every record after enrichment. A transform error
// skips the record the same way an extraction error does.
func WithTransform(fn func(Record) (Record, error)) Option {
	return func(c *Config) {
		c.Transform = fn
	}
}

// WithPageRetries sets how many times a failed page fetch is retried.
func WithPageRetries(n int) Option {
	return func(c *Config) {
		c.PageRetries = n
	}
}

// WithReacquireRetries sets how many times the cursor is re-acquired
// before the run aborts.
func WithReacquireRetries(n int) Option {
	return func(c *Config) {
		c.ReacquireRetries = n
	}
}

// WithBackoff sets the initial and maximum retry backoff.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Config) {
		c.RetryBackoff = initial
		c.MaxBackoff = max
	}
}

// WithMaxPages limits the number of pages fetched.
func WithMaxPages(n int) Option {
	return func(c *Config) {
		c.MaxPages = n
	}
}

// WithDelay sets the delay between pages.
func WithDelay(d time.Duration) Option {
	return func(c *Config) {
		c.Delay = d
	}
}

// WithWorkers sets the number of enrichment workers used within a page.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithDedupe drops records whose field value was already emitted or is
// listed in seed.
func WithDedupe(field string, seed ...string) Option {
	return func(c *Config) {
		c.DedupeField = field
		c.DedupeSeed = seed
	}
}

// WithCheckpoint enables resume from store under key.
func WithCheckpoint(store CheckpointStore, key string) Option {
	return func(c *Config) {
		c.Checkpoint = store
		c.CheckpointKey = key
	}
}
