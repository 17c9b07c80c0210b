// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"TaskSync/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewSyncConfig,
	NewSyncUsecase,
	NewBreakerRegistry,
	NewHealthProbe,
	NewWatcherFromConf,
	// Import data layer providers
	data.NewTaskmasterRepo,
	data.NewCommandRunner,
	data.NewStatusRepo,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(SyncGateway), new(*data.TaskmasterRepo)),
	wire.Bind(new(FallbackRunner), new(*data.CommandRunner)),
	wire.Bind(new(StatusPublisher), new(*data.StatusRepo)),
)
