package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store persists drained events. Insert must write the whole batch in one
// transaction.
type Store interface {
	InsertEvents(ctx context.Context, stream Stream, events []Event) error
}

// Config configures a Pipeline.
type Config struct {
	Prefix     string
	Interval   time.Duration
	QueueSize  int
	DropIfFull bool
}

// Pipeline owns one Buffer per stream and the flush loop.
type Pipeline struct {
	buffers    map[Stream]*Buffer
	store      Store
	logger     *zap.Logger
	interval   time.Duration
	dispatcher *Dispatcher

	flushing  sync.Mutex
	flushed   atomic.Uint64
	failures  atomic.Uint64
	appendErr atomic.Uint64
}

// NewPipeline wires the buffers and starts the async dispatcher. Run must
// be started separately.
func NewPipeline(client redis.UniversalClient, store Store, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if client == nil {
		return nil, errors.New("audit: redis client is required")
	}
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		buffers:  make(map[Stream]*Buffer, len(Streams)),
		store:    store,
		logger:   logger,
		interval: cfg.Interval,
	}
	for _, s := range Streams {
		p.buffers[s] = NewBuffer(client, cfg.Prefix, s)
	}
	p.dispatcher = NewDispatcher(DispatcherConfig{BufferSize: cfg.QueueSize, DropIfFull: cfg.DropIfFull}, p)
	return p, nil
}

// Record queues event without blocking on Redis.
func (p *Pipeline) Record(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	p.dispatcher.Emit(ctx, event)
}

// EmitBatch implements Sink. Events are grouped per stream so each stream
// costs one RPUSH.
func (p *Pipeline) EmitBatch(ctx context.Context, events []Event) {
	grouped := make(map[Stream][]any, len(Streams))
	for _, ev := range events {
		payload, err := p.encode(ev)
		if err != nil {
			p.appendErr.Add(1)
			p.logger.Warn("audit encode failed", zap.String("stream", string(ev.Stream)), zap.Error(err))
			continue
		}
		grouped[ev.Stream] = append(grouped[ev.Stream], payload)
	}
	for stream, payloads := range grouped {
		if err := p.buffers[stream].Append(ctx, payloads...); err != nil {
			p.appendErr.Add(uint64(len(payloads)))
			p.logger.Warn("audit append failed", zap.String("stream", string(stream)), zap.Int("events", len(payloads)), zap.Error(err))
		}
	}
}

// Append synchronously writes event to the active slot of its stream.
func (p *Pipeline) Append(ctx context.Context, event Event) error {
	payload, err := p.encode(event)
	if err != nil {
		return err
	}
	return p.buffers[event.Stream].Append(ctx, payload)
}

func (p *Pipeline) encode(event Event) ([]byte, error) {
	if _, ok := p.buffers[event.Stream]; !ok {
		return nil, fmt.Errorf("audit: unknown stream %q", event.Stream)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return json.Marshal(event)
}

// Flush runs one cycle over every stream concurrently. Streams that fail
// keep their inflight list for the next cycle.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.flushing.Lock()
	defer p.flushing.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range Streams {
		stream := s
		buf := p.buffers[s]
		g.Go(func() error {
			return p.flushStream(gctx, stream, buf)
		})
	}
	err := g.Wait()
	if err != nil {
		p.failures.Add(1)
	}
	return err
}

func (p *Pipeline) flushStream(ctx context.Context, stream Stream, buf *Buffer) error {
	prev := buf.Swap()
	items, err := buf.Drain(ctx, prev)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	events := make([]Event, 0, len(items))
	for _, raw := range items {
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			p.logger.Warn("audit: dropping undecodable event", zap.String("stream", string(stream)), zap.Error(err))
			continue
		}
		ev.Stream = stream
		events = append(events, ev)
	}

	if len(events) > 0 {
		if err := p.store.InsertEvents(ctx, stream, events); err != nil {
			return fmt.Errorf("audit: insert %s: %w", stream, err)
		}
	}
	if err := buf.Ack(ctx); err != nil {
		return err
	}
	p.flushed.Add(uint64(len(events)))
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("audit flush failed", zap.Error(err))
			}
		case <-ctx.Done():
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Flush(shutdown); err != nil {
				p.logger.Error("audit final flush failed", zap.Error(err))
			}
			cancel()
			return
		}
	}
}

// Close drains the dispatcher queue into Redis.
func (p *Pipeline) Close() {
	if p == nil {
		return
	}
	p.dispatcher.Close()
}

// Stats reports pipeline counters.
type Stats struct {
	Flushed      uint64
	Failures     uint64
	AppendErrors uint64
	Dropped      uint64
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Flushed:      p.flushed.Load(),
		Failures:     p.failures.Load(),
		AppendErrors: p.appendErr.Load(),
		Dropped:      p.dispatcher.Dropped(),
	}
}

// Pending reports queued but not yet persisted events for stream.
func (p *Pipeline) Pending(ctx context.Context, stream Stream) (int64, error) {
	buf, ok := p.buffers[stream]
	if !ok {
		return 0, fmt.Errorf("audit: unknown stream %q", stream)
	}
	return buf.Len(ctx)
}
