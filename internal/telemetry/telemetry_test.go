package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_None(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_Stdout(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	shutdown, err := Setup(ctx, Options{
		Exporter:       "stdout",
		ServiceName:    "mess-bot-test",
		ServiceVersion: "test",
		Writer:         &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(ctx, "meal.SetRange")
	span.End()
	counter, err := otel.Meter("telemetry_test").Int64Counter("mess.meal.toggles")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	require.NoError(t, shutdown(ctx))
	require.Contains(t, buf.String(), "meal.SetRange")
	require.Contains(t, buf.String(), "mess.meal.toggles")
	require.Contains(t, buf.String(), "mess-bot-test")
}

func TestSetup_Unknown(t *testing.T) {
	_, err := Setup(context.Background(), Options{Exporter: "zipkin"})
	require.ErrorContains(t, err, "unknown telemetry exporter")

	_, err = Setup(context.Background(), Options{Exporter: "otlp", Protocol: "udp"})
	require.ErrorContains(t, err, "unknown otlp protocol")
}
