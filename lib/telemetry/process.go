package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
	api "go.opentelemetry.io/otel/metric"
)

var processMeter = otel.Meter("insights.lib.telemetry")

// InstrumentProcess registers gauges for this process that are observed on each metric
// collection. Unregister the returned registration to stop observing.
func InstrumentProcess() (api.Registration, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	cpu, err := processMeter.Float64ObservableGauge(
		"process.cpu.utilization",
		api.WithUnit("%"),
		api.WithDescription("cpu used by the process since the previous collection"),
	)
	if err != nil {
		return nil, err
	}
	rss, err := processMeter.Int64ObservableGauge("process.memory.usage", api.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	heap, err := processMeter.Int64ObservableGauge("process.runtime.go.mem.heap_alloc", api.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	objects, err := processMeter.Int64ObservableGauge("process.runtime.go.mem.live_objects")
	if err != nil {
		return nil, err
	}
	goroutines, err := processMeter.Int64ObservableGauge("process.runtime.go.goroutines")
	if err != nil {
		return nil, err
	}

	// process keeps the previous cpu sample, Percent is not safe to call concurrently
	var mu sync.Mutex
	return processMeter.RegisterCallback(func(ctx context.Context, o api.Observer) error {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		o.ObserveInt64(heap, int64(mem.HeapAlloc))
		o.ObserveInt64(objects, int64(mem.Mallocs)-int64(mem.Frees))
		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))

		mu.Lock()
		defer mu.Unlock()
		if pct, err := proc.PercentWithContext(ctx, 0); err == nil {
			o.ObserveFloat64(cpu, pct)
		} else {
			slog.DebugContext(ctx, "read process cpu", "err", err)
		}
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			o.ObserveInt64(rss, int64(info.RSS))
		} else {
			slog.DebugContext(ctx, "read process memory", "err", err)
		}
		return nil
	}, cpu, rss, heap, objects, goroutines)
}
