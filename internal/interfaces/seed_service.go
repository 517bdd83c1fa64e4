package interfaces

import "context"

// SeedService loads declarative job definitions at startup
type SeedService interface {
	// LoadFromDir reads every YAML file in dir and registers the jobs
	// it declares, skipping jobs whose name already exists. Returns the
	// number created.
	LoadFromDir(ctx context.Context, dir string) (int, error)
}
