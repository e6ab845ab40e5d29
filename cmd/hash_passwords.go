package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"rentledger/internal/auth"
	"rentledger/internal/config"
	"rentledger/internal/logging"
	"rentledger/internal/manager"
	"rentledger/internal/storage"
)

// errNothingToHash aborts the update so an already clean snapshot is not
// rewritten.
var errNothingToHash = errors.New("no plaintext passwords")

func hashPasswordsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-passwords",
		Short: "Replace plaintext tenant passwords in the snapshot with bcrypt hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format)
			ctx := context.Background()

			backend, release, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer release()

			store := storage.NewStore(backend, log, storage.WithSeed(manager.SeedDataset))
			if err := store.Load(ctx); err != nil {
				return err
			}

			var rehashed int
			err = store.Update(ctx, func(ds *storage.Dataset) error {
				rehashed = 0
				for i := range ds.Tenants {
					if auth.IsHashed(ds.Tenants[i].Password) {
						continue
					}
					hash, err := auth.HashPassword(ds.Tenants[i].Password)
					if err != nil {
						return err
					}
					ds.Tenants[i].Password = hash
					rehashed++
				}
				if rehashed == 0 {
					return errNothingToHash
				}
				return nil
			})
			if errors.Is(err, errNothingToHash) {
				log.Info("no plaintext passwords found")
				return nil
			}
			if err != nil {
				return err
			}
			log.WithField("tenants", rehashed).Info("passwords hashed")
			return nil
		},
	}
}
