package infra

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
)

// NewElasticsearch configures a client and verifies the cluster answers.
func NewElasticsearch(ctx context.Context, url string) (*elasticsearch.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("elasticsearch url is required")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("ping elasticsearch: %s", res.String())
	}
	return client, nil
}
