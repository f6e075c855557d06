package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type orderMetrics struct {
	created   metric.Int64Counter
	failed    metric.Int64Counter
	conflicts metric.Int64Counter
}

func newOrderMetrics() orderMetrics {
	meter := otel.Meter("order_service")

	return orderMetrics{
		created:   counter(meter, "orders.created", "Orders committed"),
		failed:    counter(meter, "orders.failed", "Order submissions that ended in an error"),
		conflicts: counter(meter, "orders.conflicts", "Order attempts rolled back by a version conflict"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
