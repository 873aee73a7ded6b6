package worker

import (
	"context"
	"sync"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/adilzhm/notification-pipeline/internal/model"
	"github.com/adilzhm/notification-pipeline/internal/rabbitmq/queue"
)

//go:generate mockgen -source=dispatcher.go -destination=../mocks/worker/mock.go -package=mocks

type deliveryConsumer interface {
	Consume(ctx context.Context, c model.Channel, out chan<- queue.DeliveryMessage, strategy retry.Strategy) error
}

type messageHandler interface {
	HandleMessage(ctx context.Context, msg queue.DeliveryMessage, strategy retry.Strategy) error
}

// Dispatcher runs an independent pool of worker goroutines per delivery
// channel, each pool consuming that channel's queue.
type Dispatcher struct {
	queue   deliveryConsumer
	handler messageHandler
}

func NewDispatcher(q deliveryConsumer, h messageHandler) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		handler: h,
	}
}

// Run starts workersPerChannel goroutines for every channel and blocks
// until the context is cancelled and all workers have drained.
func (d *Dispatcher) Run(ctx context.Context, strategy retry.Strategy, workersPerChannel int) {
	var wg sync.WaitGroup

	for _, c := range model.Channels {
		msgChan := make(chan queue.DeliveryMessage, workersPerChannel*10)

		go func(c model.Channel) {
			if err := d.queue.Consume(ctx, c, msgChan, strategy); err != nil {
				zlog.Logger.Error().Err(err).Str("channel", c.String()).Msg("failed to consume messages")
			}
		}(c)

		wg.Add(workersPerChannel)
		for i := 0; i < workersPerChannel; i++ {
			go func(c model.Channel, id int) {
				defer wg.Done()

				zlog.Logger.Printf("%s worker-%d started", c, id)

				for {
					select {
					case <-ctx.Done():
						zlog.Logger.Printf("%s worker-%d shutting down", c, id)
						return
					case msg, ok := <-msgChan:
						if !ok {
							zlog.Logger.Printf("%s worker-%d channel closed, shutting down", c, id)
							return
						}

						if err := d.handler.HandleMessage(ctx, msg, strategy); err != nil {
							zlog.Logger.Printf("%s worker-%d: delivery of %s failed: %v", c, id, msg.NotificationID, err)
						}
					}
				}
			}(c, i)
		}
	}

	<-ctx.Done()
	wg.Wait()
	zlog.Logger.Print("dispatcher stopped")
}
