// Package auditindex mirrors committed ledger transactions into Elasticsearch
// so operators can search the money trail.
package auditindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/outbox"
	"github.com/deepwater-mud/economy/internal/store"
)

const mapping = `{
	"mappings": {
		"properties": {
			"id":          { "type": "keyword" },
			"type":        { "type": "keyword" },
			"fromWallet":  { "type": "keyword" },
			"toWallet":    { "type": "keyword" },
			"amount":      { "type": "scaled_float", "scaling_factor": 1000000 },
			"description": { "type": "text" },
			"createdAt":   { "type": "date" }
		}
	}
}`

// Indexer writes ledger.AuditDocument values into one index.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

// New returns an Indexer writing to index.
func New(client *elasticsearch.Client, index string, logger *slog.Logger) *Indexer {
	return &Indexer{client: client, index: index, logger: logger}
}

// EnsureIndex creates the index with its mapping when it is missing.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", i.index, err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		return nil
	}

	req := esapi.IndicesCreateRequest{Index: i.index, Body: bytes.NewReader([]byte(mapping))}
	res, err = req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", i.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", i.index, res.String())
	}
	i.logger.InfoContext(ctx, "audit index created", "index", i.index)
	return nil
}

// Index stores doc under its transaction id, so redelivery overwrites
// rather than duplicates.
func (i *Indexer) Index(ctx context.Context, doc ledger.AuditDocument) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode audit document: %w", err)
	}
	req := esapi.IndexRequest{Index: i.index, DocumentID: doc.ID, Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return "", fmt.Errorf("index %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", fmt.Errorf("index %s: %s", doc.ID, res.String())
	}
	return i.index + "/" + doc.ID, nil
}

// OutboxHandler indexes audit.ledger outbox rows.
func (i *Indexer) OutboxHandler() outbox.Handler {
	return func(ctx context.Context, msg store.OutboxMessage) (string, error) {
		var doc ledger.AuditDocument
		if err := json.Unmarshal(msg.Payload, &doc); err != nil {
			return "", fmt.Errorf("decode audit document: %w", err)
		}
		return i.Index(ctx, doc)
	}
}
