package fibersched

import "github.com/quill-systems/fibersched/fiber"

// Flags controls optional Create behavior. Spec §6 names exactly two
// values; it is a bitmask type rather than a bool to leave room for
// future flags without breaking the Create signature.
type Flags uint32

const (
	// None requests no optional behavior; the OS scheduler places worker
	// threads freely.
	None Flags = 0
	// Affinitize pins worker thread i to logical CPU i.
	Affinitize Flags = 1 << 0
)

// config collects everything an Option can override; defaultConfig fills
// in every field so Create never has to nil-check.
type config struct {
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
	provider     fiber.Provider
}

func defaultConfig() config {
	return config{
		logger:       NoOpLogger{},
		metrics:      NilMetrics{},
		panicHandler: DefaultPanicHandler{Logger: NoOpLogger{}},
		provider:     fiber.DefaultProvider,
	}
}

// Option configures optional Manager collaborators, following the same
// functional-options shape the teacher uses for its TaskSchedulerConfig.
type Option func(*config)

// WithLogger overrides the Manager's Logger. The default is NoOpLogger.
func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics overrides the Manager's Metrics sink. The default is
// NilMetrics.
func WithMetrics(m Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithPanicHandler overrides how a task panic is handled. The default logs
// through the configured Logger and re-panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) { c.panicHandler = h }
}

// WithFiberProvider overrides the fiber.Provider a Manager uses. Intended
// for tests that need to observe or fake fiber lifecycle calls; production
// callers should leave this at fiber.DefaultProvider.
func WithFiberProvider(p fiber.Provider) Option {
	return func(c *config) { c.provider = p }
}
