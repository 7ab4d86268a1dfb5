package controller

import (
	"context"
	"promptbank/internal/cache"
	"promptbank/internal/database"
	"promptbank/internal/model"
	"promptbank/internal/rabbitmq"
	"time"
)

type ServerController interface {
	DBHealth() error
	CacheHealth() error
	RabbitHealth() error
	Online() string
	OperationCounts(ctx context.Context) (map[model.OperationStatus]int64, error)
}

type serverController struct {
	db     database.Database
	cache  cache.Cache
	rabbit rabbitmq.Client
}

// NewServer reports on the service dependencies. cache and rabbit may be nil
// when the service runs without them.
func NewServer(db database.Database, cache cache.Cache, rabbit rabbitmq.Client) ServerController {
	return &serverController{
		db:     db,
		cache:  cache,
		rabbit: rabbit,
	}
}

func (sc *serverController) Online() string {
	return "Online"
}

func (sc *serverController) DBHealth() error {
	return sc.db.Health()
}

func (sc *serverController) CacheHealth() error {
	if sc.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return sc.cache.Ping(ctx)
}

func (sc *serverController) RabbitHealth() error {
	if sc.rabbit == nil {
		return nil
	}
	return sc.rabbit.Health()
}

func (sc *serverController) OperationCounts(ctx context.Context) (map[model.OperationStatus]int64, error) {
	counts := make(map[model.OperationStatus]int64, len(model.AllStatuses))
	for _, status := range model.AllStatuses {
		n, err := sc.db.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}
