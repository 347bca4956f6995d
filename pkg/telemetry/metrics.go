// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	saveerrors "github.com/jllopis/slotsave/pkg/errors"
)

// SlotMetrics tracks save/load activity for production monitoring.
type SlotMetrics struct {
	saveCounter  metric.Int64Counter
	loadCounter  metric.Int64Counter
	errorCounter metric.Int64Counter

	// containerEntries records how many entries each written container holds
	containerEntries metric.Int64Histogram

	// participantsGauge tracks how many participants are registered
	participantsGauge metric.Int64Gauge
}

// NewSlotMetrics creates slot instruments on the global meter provider.
func NewSlotMetrics(_ context.Context) (*SlotMetrics, error) {
	meter := otel.Meter("slotsave/manager")

	saveCounter, err := meter.Int64Counter(
		"slotsave.saves.total",
		metric.WithDescription("Completed saves by slot"),
	)
	if err != nil {
		return nil, err
	}

	loadCounter, err := meter.Int64Counter(
		"slotsave.loads.total",
		metric.WithDescription("Completed loads by slot"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"slotsave.errors.total",
		metric.WithDescription("Failed slot operations by operation and error code"),
	)
	if err != nil {
		return nil, err
	}

	containerEntries, err := meter.Int64Histogram(
		"slotsave.container.entries",
		metric.WithDescription("Number of entries in written slot containers"),
	)
	if err != nil {
		return nil, err
	}

	participantsGauge, err := meter.Int64Gauge(
		"slotsave.participants.registered",
		metric.WithDescription("Currently registered participants"),
	)
	if err != nil {
		return nil, err
	}

	return &SlotMetrics{
		saveCounter:       saveCounter,
		loadCounter:       loadCounter,
		errorCounter:      errorCounter,
		containerEntries:  containerEntries,
		participantsGauge: participantsGauge,
	}, nil
}

// RecordSave counts a completed save and the entry count of the written container.
func (m *SlotMetrics) RecordSave(ctx context.Context, slotName string, entries int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrSlotName, slotName))
	m.saveCounter.Add(ctx, 1, attrs)
	m.containerEntries.Record(ctx, int64(entries), attrs)
}

// RecordLoad counts a completed load.
func (m *SlotMetrics) RecordLoad(ctx context.Context, slotName string) {
	if m == nil {
		return
	}
	m.loadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrSlotName, slotName)))
}

// RecordError counts a failed operation by its error code.
func (m *SlotMetrics) RecordError(ctx context.Context, op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrOperation, op),
			attribute.String(AttrErrorCode, string(saveerrors.CodeOf(err))),
		),
	)
}

// RecordParticipants records the current registry size.
func (m *SlotMetrics) RecordParticipants(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.participantsGauge.Record(ctx, int64(n))
}
