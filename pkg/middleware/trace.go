package middleware

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ereojs/ereo/pkg/common"
)

// IDGenerator produces trace IDs from a buffered channel so that hot
// request paths never wait on UUID generation.
type IDGenerator struct {
	idChan chan string
	once   sync.Once
}

// NewIDGenerator creates a generator with the given buffer size.
func NewIDGenerator(bufferSize int) *IDGenerator {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	g := &IDGenerator{idChan: make(chan string, bufferSize)}
	g.start()
	return g
}

var (
	defaultGenerator     *IDGenerator
	defaultGeneratorOnce sync.Once
)

// DefaultIDGenerator returns the shared process-wide generator.
func DefaultIDGenerator() *IDGenerator {
	defaultGeneratorOnce.Do(func() {
		defaultGenerator = NewIDGenerator(4096)
	})
	return defaultGenerator
}

func (g *IDGenerator) start() {
	g.once.Do(func() {
		go func() {
			for {
				g.idChan <- uuid.NewString()
			}
		}()
	})
}

// NextID returns a precomputed trace ID, generating one inline if the
// buffer happens to be empty.
func (g *IDGenerator) NextID() string {
	select {
	case id := <-g.idChan:
		return id
	default:
		return uuid.NewString()
	}
}

// TraceID creates a step that assigns a trace ID to the call context if
// one is not already present. It should run before logging steps so they
// can correlate entries.
func TraceID(gen *IDGenerator) Step {
	if gen == nil {
		gen = DefaultIDGenerator()
	}
	return StepFunc(func(ctx *common.Context, next Next) Result {
		return next(ctx.WithTraceID(gen.NextID()))
	})
}
