package outbox

import (
	"context"
	"sort"
	"sync"
)

// Job is the contract a periodic scheduler invokes, once per registered
// consumer group.
type Job interface {
	// Execute runs one unit of work.
	Execute(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

// Execute implements Job.
func (fn JobFunc) Execute(ctx context.Context) error {
	return fn(ctx)
}

// ProcessorJob wraps a Processor and its settings as a schedulable job.
type ProcessorJob[T any] struct {
	processor *Processor[T]
	settings  ConsumeSettings
	logger    Logger
}

// NewProcessorJob binds a processor to settings for periodic execution.
func NewProcessorJob[T any](processor *Processor[T], settings ConsumeSettings, logger Logger) *ProcessorJob[T] {
	if logger == nil {
		logger = NopLogger{}
	}

	return &ProcessorJob[T]{
		processor: processor,
		settings:  settings,
		logger:    logger,
	}
}

// Execute runs one polling cycle. Store errors propagate to the
// scheduler's retry policy.
func (j *ProcessorJob[T]) Execute(ctx context.Context) error {
	processed, err := j.processor.ProcessMessages(ctx, j.settings)
	if err != nil {
		return err
	}
	if processed > 0 {
		j.logger.Debug("outbox cycle processed", "part", j.processor.Part(), "count", processed)
	}

	return nil
}

// Registry holds the closed set of consumer-group jobs, keyed by part and
// resolved once at startup. Each registered part becomes one typed job for
// the external scheduler; dispatch never happens per message.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

// Register adds the job for a part. Registering a part twice is an error.
func (r *Registry) Register(part string, job Job) error {
	if part == "" {
		return ErrPartRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[part]; exists {
		return ErrDuplicateJob
	}
	r.jobs[part] = job

	return nil
}

// Job returns the job registered for a part.
func (r *Registry) Job(part string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[part]

	return job, ok
}

// Parts returns the registered part names in stable order.
func (r *Registry) Parts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	parts := make([]string, 0, len(r.jobs))
	for part := range r.jobs {
		parts = append(parts, part)
	}
	sort.Strings(parts)

	return parts
}
