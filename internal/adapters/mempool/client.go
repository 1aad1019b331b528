package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mvrv/internal/adapters/httpapi"
	"mvrv/internal/domain/mvrv"
	"mvrv/pkg/errors"
)

// Config configures the blockchain data client
type Config struct {
	MempoolURL string // block listing (mempool.space API)
	EsploraURL string // transaction details (Esplora API)
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Client implements mvrv.BlockchainProvider over the mempool.space and Esplora REST APIs
type Client struct {
	mempool *httpapi.Client
	esplora *httpapi.Client
}

// NewClient creates a blockchain data client
func NewClient(cfg Config) *Client {
	return &Client{
		mempool: httpapi.New(httpapi.Config{
			Provider:   "mempool",
			BaseURL:    cfg.MempoolURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			HTTPClient: cfg.HTTPClient,
		}),
		esplora: httpapi.New(httpapi.Config{
			Provider:   "esplora",
			BaseURL:    cfg.EsploraURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			HTTPClient: cfg.HTTPClient,
		}),
	}
}

type blockResponse struct {
	ID        string `json:"id"`
	Height    int64  `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

type txResponse struct {
	TxID string `json:"txid"`
	Vout []struct {
		Value               json.Number `json:"value"`
		ScriptPubKeyAddress string      `json:"scriptpubkey_address"`
		ScriptPubKeyType    string      `json:"scriptpubkey_type"`
	} `json:"vout"`
}

// ListRecentBlocks returns up to count blocks, newest first.
// The API returns pages of recent blocks, so older pages are requested by height.
func (c *Client) ListRecentBlocks(ctx context.Context, count int) ([]mvrv.Block, error) {
	if count <= 0 {
		return nil, nil
	}

	blocks := make([]mvrv.Block, 0, count)
	path := "/blocks"

	for len(blocks) < count {
		var page []blockResponse
		if err := c.mempool.GetJSON(ctx, "blocks", path, nil, &page); err != nil {
			if len(blocks) > 0 {
				// later pages are best-effort
				return blocks, nil
			}
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, b := range page {
			if len(blocks) == count {
				break
			}
			blocks = append(blocks, mvrv.Block{
				ID:        b.ID,
				Height:    b.Height,
				Timestamp: time.Unix(b.Timestamp, 0).UTC(),
			})
		}

		next := page[len(page)-1].Height - 1
		if next < 0 {
			break
		}
		path = fmt.Sprintf("/blocks/%d", next)
	}

	return blocks, nil
}

// ListBlockTransactionIDs returns the first limit transaction ids of a block
func (c *Client) ListBlockTransactionIDs(ctx context.Context, blockID string, limit int) ([]string, error) {
	var txids []string
	if err := c.mempool.GetJSON(ctx, "block_txids", "/block/"+blockID+"/txids", nil, &txids); err != nil {
		return nil, err
	}
	if limit > 0 && len(txids) > limit {
		txids = txids[:limit]
	}
	return txids, nil
}

// GetTransaction returns a transaction's outputs
func (c *Client) GetTransaction(ctx context.Context, txid string) (*mvrv.Transaction, error) {
	var resp txResponse
	if err := c.esplora.GetJSON(ctx, "tx", "/tx/"+txid, nil, &resp); err != nil {
		return nil, err
	}

	tx := &mvrv.Transaction{TxID: resp.TxID, Outputs: make([]mvrv.TxOutput, 0, len(resp.Vout))}
	if tx.TxID == "" {
		tx.TxID = txid
	}

	for i, out := range resp.Vout {
		sats, err := out.Value.Int64()
		if err != nil || sats < 0 {
			return nil, errors.Wrapf(errors.ErrProviderUnavailable, "tx %s output %d: bad value %q", txid, i, out.Value)
		}
		tx.Outputs = append(tx.Outputs, mvrv.TxOutput{
			Index:       uint32(i),
			ValueSats:   sats,
			Address:     out.ScriptPubKeyAddress,
			ScriptClass: out.ScriptPubKeyType,
		})
	}

	return tx, nil
}
