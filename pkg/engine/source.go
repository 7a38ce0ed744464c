package engine

import (
	"context"
	"sync"

	"github.com/user/beacon"
	"github.com/user/beacon/pkg/bus"
)

// spawnSource launches one source as an independent task against a Client
// bound to the given bus. A clean return is logged at debug level; an
// error return is logged with the origin's instance id. Neither terminates
// the engine — a source's exit never cascades.
func spawnSource(ctx context.Context, wg *sync.WaitGroup, decl beacon.SourceDecl, b *bus.EndpointBus, logger beacon.Logger) {
	scoped := scopedLogger(logger, decl.Origin)
	if setter, ok := decl.Source.(beacon.Loggable); ok && scoped != nil {
		setter.SetLogger(scoped)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		client := beacon.NewClient(decl.Origin, b)
		err := decl.Source.Produce(ctx, client)
		if err != nil {
			if scoped != nil {
				scoped.Error("source exited with error", "err", err)
			}
			return
		}
		if scoped != nil {
			scoped.Debug("source exited cleanly")
		}
	}()
}
