package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/CzarCx/qr-brain/config"
	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient indexes scan logs and lote summaries
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{client: client, config: cfg}, nil
}

func (c *ElasticClient) scansIndex() string {
	return config.FormatIndex(c.config, c.config.ScansIndex)
}

func (c *ElasticClient) lotesIndex() string {
	return config.FormatIndex(c.config, c.config.LotesIndex)
}

// IndexScans bulk-indexes submitted scan logs
func (c *ElasticClient) IndexScans(ctx context.Context, scans []models.ScanLog) error {
	if len(scans) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, s := range scans {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": c.scansIndex()}}
		if s.ID != 0 {
			meta["index"].(map[string]interface{})["_id"] = strconv.FormatUint(uint64(s.ID), 10)
		}
		if err := enc.Encode(meta); err != nil {
			return errors.Wrap(err, "failed to encode bulk action")
		}
		if err := enc.Encode(s); err != nil {
			return errors.Wrap(err, "failed to encode scan document")
		}
	}

	req := esapi.BulkRequest{Body: &body, Refresh: "false"}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch bulk request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res.Body, "bulk")
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return errors.Wrap(err, "failed to parse Elasticsearch bulk response")
	}
	if result.Errors {
		return errors.New("Elasticsearch bulk request had item failures")
	}

	log.Debug().Int("count", len(scans)).Msg("scans indexed")
	return nil
}

// SearchScans runs a full-text query over indexed scan logs
func (c *ElasticClient) SearchScans(ctx context.Context, query string, size int) ([]models.ScanLog, error) {
	q := map[string]interface{}{"match_all": map[string]interface{}{}}
	if query != "" {
		q = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"codigo^3", "encargado", "area", "fecha_escaneo"},
			},
		}
	}
	queryJSON, err := json.Marshal(map[string]interface{}{
		"size":  size,
		"query": q,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.scansIndex()},
		Body:  bytes.NewReader(queryJSON),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res.Body, "search")
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source models.ScanLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	scans := make([]models.ScanLog, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		scans = append(scans, hit.Source)
	}
	return scans, nil
}

// IndexLote stores a lote summary under its lote id
func (c *ElasticClient) IndexLote(ctx context.Context, lote models.LoteSummary) error {
	doc, err := json.Marshal(lote)
	if err != nil {
		return errors.Wrap(err, "failed to marshal lote document")
	}

	req := esapi.IndexRequest{
		Index:      c.lotesIndex(),
		DocumentID: lote.LoteP,
		Body:       bytes.NewReader(doc),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res.Body, "index")
	}

	log.Info().Str("lote", lote.LoteP).Msg("lote indexed successfully")
	return nil
}

// DeleteLote removes a lote summary. A missing document is not an error.
func (c *ElasticClient) DeleteLote(ctx context.Context, lote string) error {
	req := esapi.DeleteRequest{
		Index:      c.lotesIndex(),
		DocumentID: lote,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch delete request")
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return responseError(res.Body, "delete")
	}
	return nil
}

// Ping checks cluster connectivity
func (c *ElasticClient) Ping(ctx context.Context) error {
	res, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "failed to ping Elasticsearch")
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.Errorf("Elasticsearch ping returned %s", res.Status())
	}
	return nil
}

func responseError(body io.Reader, op string) error {
	var e map[string]interface{}
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		return errors.Wrapf(err, "failed to parse Elasticsearch %s error response", op)
	}
	return errors.Errorf("Elasticsearch %s error: %v", op, e)
}
