// Package search maintains the job search index. Writes go through an
// asynchronous sink that never blocks the pipeline; the database stays
// the source of truth and the index converges on it.
package search

import (
	"errors"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/secrets"
)

// NewClient builds an Elasticsearch client and verifies connectivity.
// The password and API key values support SECRET:NAME references.
func NewClient(cfg *config.ElasticsearchConfig, resolver secrets.Resolver, log logger.Interface) (*es.Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("elasticsearch URL is required")
	}

	password, err := secrets.Expand(resolver, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch password: %w", err)
	}
	apiKey, err := secrets.Expand(resolver, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch api key: %w", err)
	}

	clientConfig := es.Config{
		Addresses: []string{cfg.URL},
	}
	if apiKey != "" {
		clientConfig.APIKey = apiKey
	} else if cfg.Username != "" && password != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = password
	}

	client, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error pinging Elasticsearch: %s", res.String())
	}

	log.Debug("Connected to Elasticsearch", "url", cfg.URL, "index", cfg.IndexName)
	return client, nil
}
