package eventbus

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	Logger "github.com/playlog/backend/utils/log"
)

const eventBusBufferSize = 100

// NewEventBus creates the in-process event bus shared by the API server and
// the engine modules.
func NewEventBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            eventBusBufferSize,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)
}

// Engine manages shared resources and execution lifecycle of each module. It
// maintains a shared event bus.
type Engine struct {
	// A list of modules that will be run in this Engine. Module's lifetime is
	// bound to Engine's lifetime. Each Module will be ran in a separate routine.
	Modules []Module

	// Root this engine is running on
	ctx context.Context

	// Cancel function for root context, used for graceful shutdown
	cancel context.CancelFunc

	// The EventBus this engine managed. A golang channel implementation is
	// enough while every producer lives in the API server process.
	EventBus *gochannel.GoChannel

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// Create a new Engine given the provided modules and event bus.
func NewEngine(ms []Module, ctx context.Context, cancel context.CancelFunc, e *gochannel.GoChannel) *Engine {
	return &Engine{
		Modules:  ms,
		ctx:      ctx,
		cancel:   cancel,
		EventBus: e,
		done:     make(chan struct{}),
	}
}

// Execute all Engine modules and wait untils all modules to finish execution.
func (e *Engine) Run() {
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()
	defer close(e.done)
	var wg sync.WaitGroup

	for idx := range e.Modules {
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			Logger.Log.Infof("start engine module %s", m.Name())
			RunModuleWithGracefulRestart(e.ctx, m)
			Logger.Log.Infof("module %s finished execution", m.Name())
		}(e.Modules[idx])
	}

	// Block until all goroutine finished execution.
	wg.Wait()
}

// Shutdown cancels every module and closes the event bus. It blocks until Run
// returns when Run was started.
func (e *Engine) Shutdown() {
	Logger.Log.Infoln("starting graceful shutdown of the event engine")
	e.cancel()
	if err := e.EventBus.Close(); err != nil {
		Logger.Log.WithError(err).Warn("event bus did not close cleanly")
	}

	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		<-e.done
	}
}
