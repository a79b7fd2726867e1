package audit

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"store-sessions/internal/common/logger"
	"store-sessions/internal/sessions"
)

const DefaultIndex = "session-events"

type ElasticsearchRecorder struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticsearchRecorder(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchRecorder {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchRecorder{
		client: client,
		index:  index,
		logger: logger.OrNop(log),
	}
}

func (r *ElasticsearchRecorder) Record(ctx context.Context, e sessions.Event) {
	entry := newEntry(e)
	body, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("Failed to encode audit entry", map[string]interface{}{"error": err.Error()})
		return
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: entry.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		r.logFailure(e, err.Error())
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		r.logFailure(e, res.String())
	}
}

func (r *ElasticsearchRecorder) logFailure(e sessions.Event, reason string) {
	r.logger.Warn("Failed to index session event", map[string]interface{}{
		"userId":    e.PrincipalID,
		"sessionId": e.SessionID,
		"type":      string(e.Type),
		"index":     r.index,
		"error":     reason,
	})
}

// Multi fans each event out to every recorder in order.
type Multi []sessions.EventRecorder

func (m Multi) Record(ctx context.Context, e sessions.Event) {
	for _, r := range m {
		r.Record(ctx, e)
	}
}

// CounterFunc adapts a per-type counter into a recorder.
type CounterFunc func(ctx context.Context, eventType string)

func (f CounterFunc) Record(ctx context.Context, e sessions.Event) {
	f(ctx, string(e.Type))
}
