package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-loader/pkg/client"
	"github.com/Sternrassler/swapi-loader/pkg/people"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for pipeline progress.
var (
	pipelineChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_pipeline_chunks_total",
		Help: "Total chunks fully processed and persisted",
	})

	pipelineRecordsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_pipeline_records_dropped_total",
		Help: "Total primary records that produced no row, by reason",
	}, []string{"reason"})

	pipelineRowsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_pipeline_rows_persisted_total",
		Help: "Total rows handed to the store",
	})

	pipelineChunkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_pipeline_chunk_duration_seconds",
		Help:    "Wall-clock duration of one chunk, fetch to persist",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

// Config holds pipeline configuration.
type Config struct {
	// BaseURL is the API root; people live at BaseURL/people/{id}/
	BaseURL string

	// FirstID and LastID bound the id range, both inclusive
	FirstID int
	LastID  int

	// ChunkSize is the number of ids fetched and persisted together
	ChunkSize int

	// AssembleConcurrency caps concurrent record assemblies within a chunk.
	// 0 assembles every record of the chunk at once.
	AssembleConcurrency int
}

// DefaultConfig returns the configuration of a full SWAPI people pass.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://swapi.py4e.com/api",
		FirstID:   0,
		LastID:    99,
		ChunkSize: 5,
	}
}

// Fetcher fetches a list of URLs concurrently, aligned to input order.
type Fetcher interface {
	FetchAll(ctx context.Context, urls []string) []client.Result
}

// Assembler turns one fetched primary record into a row, or reports why not.
type Assembler interface {
	Assemble(ctx context.Context, primary client.Result) (*people.Row, error)
}

// Appender persists one batch atomically.
type Appender interface {
	AppendBatch(ctx context.Context, rows []people.Row) error
}

// Stats summarizes a run.
type Stats struct {
	Chunks    int
	Requested int
	Fetched   int
	Dropped   int
	Persisted int
	Duration  time.Duration
}

// Pipeline runs chunked passes over the people id range.
type Pipeline struct {
	fetcher   Fetcher
	assembler Assembler
	store     Appender
	config    Config
	logger    zerolog.Logger
}

// New creates a pipeline.
func New(fetcher Fetcher, assembler Assembler, store Appender, cfg Config) (*Pipeline, error) {
	if fetcher == nil || assembler == nil || store == nil {
		return nil, fmt.Errorf("fetcher, assembler and store are required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be > 0 (got %d)", cfg.ChunkSize)
	}
	if cfg.LastID < cfg.FirstID {
		return nil, fmt.Errorf("empty id range [%d, %d]", cfg.FirstID, cfg.LastID)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.AssembleConcurrency < 0 {
		cfg.AssembleConcurrency = 0
	}

	return &Pipeline{
		fetcher:   fetcher,
		assembler: assembler,
		store:     store,
		config:    cfg,
		logger:    log.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Chunks splits [first, last] into consecutive slices of at most size ids.
func Chunks(first, last, size int) [][]int {
	if size <= 0 || last < first {
		return nil
	}

	n := last - first + 1
	chunks := make([][]int, 0, (n+size-1)/size)
	for start := first; start <= last; start += size {
		end := min(start+size-1, last)
		chunk := make([]int, 0, end-start+1)
		for id := start; id <= end; id++ {
			chunk = append(chunk, id)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// PersonURL returns the canonical URL of person id.
func (p *Pipeline) PersonURL(id int) string {
	return fmt.Sprintf("%s/people/%d/", strings.TrimRight(p.config.BaseURL, "/"), id)
}

// Run processes every chunk in order and returns the totals.
// It stops at the first store error, or when ctx is cancelled between chunks.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	chunks := Chunks(p.config.FirstID, p.config.LastID, p.config.ChunkSize)

	p.logger.Info().
		Int("first_id", p.config.FirstID).
		Int("last_id", p.config.LastID).
		Int("chunk_size", p.config.ChunkSize).
		Int("chunks", len(chunks)).
		Msg("Starting pipeline run")

	var stats Stats
	for i, ids := range chunks {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			p.logger.Warn().Err(err).Int("chunk", i).Msg("Pipeline cancelled")
			return stats, err
		}

		chunkStart := time.Now()
		rows, cs := p.processChunk(ctx, ids)

		if err := p.store.AppendBatch(ctx, rows); err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("persist chunk %d (ids %d-%d): %w", i, ids[0], ids[len(ids)-1], err)
		}

		stats.Chunks++
		stats.Requested += cs.Requested
		stats.Fetched += cs.Fetched
		stats.Dropped += cs.Dropped
		stats.Persisted += len(rows)

		pipelineChunksTotal.Inc()
		pipelineRowsPersistedTotal.Add(float64(len(rows)))
		pipelineChunkDuration.Observe(time.Since(chunkStart).Seconds())

		p.logger.Info().
			Int("chunk", i).
			Int("first_id", ids[0]).
			Int("last_id", ids[len(ids)-1]).
			Int("fetched", cs.Fetched).
			Int("persisted", len(rows)).
			Int("dropped", cs.Dropped).
			Dur("duration", time.Since(chunkStart)).
			Msg("Chunk persisted")
	}

	stats.Duration = time.Since(start)
	p.logger.Info().
		Int("chunks", stats.Chunks).
		Int("persisted", stats.Persisted).
		Int("dropped", stats.Dropped).
		Dur("duration", stats.Duration).
		Msg("Pipeline complete")

	return stats, nil
}

// processChunk fetches and assembles one chunk. Every goroutine it starts has
// returned before it does. Rows come back in id order.
func (p *Pipeline) processChunk(ctx context.Context, ids []int) ([]people.Row, Stats) {
	urls := make([]string, len(ids))
	for i, id := range ids {
		urls[i] = p.PersonURL(id)
	}

	primaries := p.fetcher.FetchAll(ctx, urls)
	cs := Stats{Requested: len(ids)}

	assembled := make([]*people.Row, len(primaries))
	errs := make([]error, len(primaries))

	var g errgroup.Group
	if p.config.AssembleConcurrency > 0 {
		g.SetLimit(p.config.AssembleConcurrency)
	}
	for i, primary := range primaries {
		i, primary := i, primary
		if primary.OK() {
			cs.Fetched++
		}
		g.Go(func() error {
			assembled[i], errs[i] = p.assembler.Assemble(ctx, primary)
			return nil
		})
	}
	_ = g.Wait()

	rows := make([]people.Row, 0, len(assembled))
	for i, row := range assembled {
		if errs[i] != nil || row == nil {
			reason := people.DropReason(errs[i])
			if reason == "" {
				reason = "other"
			}
			pipelineRecordsDroppedTotal.WithLabelValues(reason).Inc()
			cs.Dropped++

			event := p.logger.Info()
			if reason == "unfetchable" {
				event = p.logger.Debug()
			}
			event.Int("id", ids[i]).Str("reason", reason).AnErr("cause", errs[i]).Msg("Record dropped")
			continue
		}
		rows = append(rows, *row)
	}

	return rows, cs
}
