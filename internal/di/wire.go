//go:build wireinject
// +build wireinject

package di

import (
	"OrbLab/pkg/config"
	"OrbLab/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application and
// a cleanup that closes the infrastructure clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideBarStore,
		ProvideResultStore,
		ProvideResultPublisher,
		ProvideRedisQueue,
		ProvideRequestQueue,

		// Use cases
		ProvideBacktestUseCase,
		ProvideSweepUseCase,
		ProvideBacktestRequestHandler,

		// Surfaces
		ProvideRateLimiter,
		ProvideHTTPHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
