package mesh

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ThePerkinrex/gilbert/chatter"
	"github.com/ThePerkinrex/gilbert/config"
)

// StartConnectionWatchdog periodically pings every connected peer, adapted
// from beekeeper's startConnectionWatchdog (watchdog.go) to the mesh's
// per-Connection Ping/Pong liveness check instead of a broadcasted status
// rescan. It runs until ctx is canceled.
func StartConnectionWatchdog(ctx context.Context, manager *NodeManager) {
	ticker := time.NewTicker(config.WatchdogSleep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingConnected(manager)
		}
	}
}

func pingConnected(manager *NodeManager) {
	for _, name := range manager.Connected() {
		status, conn := manager.Get(name)
		if status != StatusUp || conn == nil {
			continue
		}

		nonce := rand.Uint32()
		if err := conn.Send(chatter.Ping(nonce)); err != nil {
			logrus.WithField("peer", name).WithError(err).Warn("watchdog ping failed, marking peer down")
			manager.Down(name)
		}
	}
}
