package metrics

import (
	"sync/atomic"
	"time"

	eel "github.com/bjitd/eel-sdk"
	"github.com/rs/zerolog/log"
)

// New wraps a sink so that every Write and the final Close are timed and
// counted. The wrapped sink is untouched otherwise.
func New(s eel.RowSink) *SinkMetrics {
	return &SinkMetrics{sink: s}
}

type SinkMetrics struct {
	sink eel.RowSink

	writes       atomic.Int64
	writeErrors  atomic.Int64
	writeNanos   atomic.Int64
	blockedNanos atomic.Int64
}

func (m *SinkMetrics) Write(row eel.Row) error {
	now := time.Now()
	defer func() {
		elapsed := time.Since(now)
		m.writes.Add(1)
		m.writeNanos.Add(elapsed.Nanoseconds())

		log.Debug().Fields(map[string]interface{}{
			"elapsed": elapsed,
			"columns": row.Len()}).
			Msg("Write")
	}()

	err := m.sink.Write(row)
	if err != nil {
		m.writeErrors.Add(1)
	}

	return err
}

func (m *SinkMetrics) Close() error {
	now := time.Now()
	defer func() {
		elapsed := time.Since(now)
		m.blockedNanos.Add(elapsed.Nanoseconds())
		log.Debug().Fields(map[string]interface{}{"elapsed": elapsed}).Msg("Close")
	}()

	return m.sink.Close()
}

type Snapshot struct {
	Writes       int64         `json:"writes"`
	WriteErrors  int64         `json:"write_errors"`
	AvgWriteTime time.Duration `json:"avg_write_time"`
	CloseTime    time.Duration `json:"close_time"`
}

func (m *SinkMetrics) Snapshot() Snapshot {
	writes := m.writes.Load()
	snap := Snapshot{
		Writes:      writes,
		WriteErrors: m.writeErrors.Load(),
		CloseTime:   time.Duration(m.blockedNanos.Load()),
	}

	if writes > 0 {
		snap.AvgWriteTime = time.Duration(m.writeNanos.Load() / writes)
	}

	return snap
}
