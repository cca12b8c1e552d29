// Package feed turns recorded or live agent activity into game events.
// Every source shares one Decoder, which checks the record envelope
// against an embedded JSON schema, fills in missing ids and counts what
// it accepts and rejects.
package feed

import (
	"bytes"
	"crypto/rand"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mvmcode/elves-sub000/internal/game"
)

//go:embed envelope.schema.json
var envelopeSchema []byte

const envelopeURL = "https://github.com/mvmcode/elves-sub000/schemas/envelope.schema.json"

// ErrInvalidRecord marks a record that failed decoding or validation.
// Sources skip such records and keep going.
var ErrInvalidRecord = errors.New("invalid record")

// Metrics counts decoder outcomes.
type Metrics struct {
	Records  *prometheus.CounterVec
	Rejected *prometheus.CounterVec
}

// NewMetrics creates the feed counters and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "elves_feed_records_total",
				Help: "Records accepted by the event feed, by kind",
			},
			[]string{"kind"},
		),
		Rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "elves_feed_rejected_total",
				Help: "Records dropped by the event feed, by reason",
			},
			[]string{"reason"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Records, m.Rejected)
	}
	return m
}

// Decoder validates and decodes single JSON records. It is safe for
// concurrent use.
type Decoder struct {
	schema  *jsonschema.Schema
	metrics *Metrics

	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewDecoder compiles the envelope schema. m may be nil.
func NewDecoder(m *Metrics) (*Decoder, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeURL, bytes.NewReader(envelopeSchema)); err != nil {
		return nil, fmt.Errorf("envelope schema: %w", err)
	}
	s, err := c.Compile(envelopeURL)
	if err != nil {
		return nil, fmt.Errorf("envelope schema: %w", err)
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Decoder{
		schema:  s,
		metrics: m,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}, nil
}

func (d *Decoder) reject(reason string, err error) error {
	d.metrics.Rejected.WithLabelValues(reason).Inc()
	return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, reason, err)
}

// Decode parses one record. Records without an id get a fresh ULID so the
// scene can deduplicate them.
func (d *Decoder) Decode(raw []byte) (game.Event, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return game.Event{}, d.reject("json", err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return game.Event{}, d.reject("schema", err)
	}
	var ev game.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return game.Event{}, d.reject("json", err)
	}
	if ev.Kind == game.EventUnknown {
		return game.Event{}, d.reject("kind", errors.New("unrecognised kind"))
	}
	if ev.ID == "" {
		ev.ID = d.newID()
	}
	d.metrics.Records.WithLabelValues(ev.Kind.String()).Inc()
	return ev, nil
}

// DecodeValue validates and decodes an already assembled record.
func (d *Decoder) DecodeValue(rec map[string]any) (game.Event, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return game.Event{}, d.reject("json", err)
	}
	return d.Decode(raw)
}

func (d *Decoder) newID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(d.now()), d.entropy).String()
}
