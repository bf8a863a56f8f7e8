package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/inkform/inkform-backend/internal/platform/gcs"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/platform/redlock"
	"github.com/inkform/inkform-backend/internal/platform/sendgrid"
	"github.com/inkform/inkform-backend/internal/vault"
)

type Clients struct {
	Bucket gcs.Client
	Mail   sendgrid.Client
	Locker redlock.Locker
	Sealer vault.Vault
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	bucket, err := gcs.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init gcs client: %w", err)
	}

	mail, err := sendgrid.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init sendgrid client: %w", err)
	}

	// Completion already holds a per-document singleflight guard in
	// process; the Redis lock only matters with multiple replicas.
	locker := redlock.Noop()
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		locker, err = redlock.New(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis locker: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set, completion lock is process-local only")
	}

	sealer, err := vault.NewFromEnv()
	if err != nil {
		return Clients{}, fmt.Errorf("init credential vault: %w", err)
	}

	return Clients{
		Bucket: bucket,
		Mail:   mail,
		Locker: locker,
		Sealer: sealer,
	}, nil
}
