package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/endorses/trustpeer/internal/pkg/constants"
	"github.com/endorses/trustpeer/internal/pkg/logger"
)

// SetupHandler cancels ctx on SIGINT or SIGTERM and calls onReload for every
// SIGHUP. onReload may be nil, in which case SIGHUP is ignored.
// Returns a cleanup function that stops signal delivery and waits for the
// handler goroutine to exit.
func SetupHandler(ctx context.Context, cancel context.CancelFunc, onReload func()) (cleanup func()) {
	sigCh := make(chan os.Signal, constants.SignalChannelBuffer)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					logger.Info("Received signal, reloading trusted table", "signal", sig.String())
					if onReload != nil {
						onReload()
					}
					continue
				}
				logger.Info("Received signal, initiating shutdown", "signal", sig.String())
				cancel()
				return
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(stop)
		<-done
	}
}
