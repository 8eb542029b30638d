package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/djkazic/dodmine/internal/bitwork"
	"github.com/djkazic/dodmine/pkg/bitcoinutil"
)

// HTTPClient implements Coordinator over a JSON-over-HTTP transport.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a coordinator client rooted at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return &RejectedError{Reason: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w (body: %s)", err, string(respBody))
	}
	return nil
}

// GetLastBlock implements Coordinator.
func (c *HTTPClient) GetLastBlock(ctx context.Context) (uint64, *BlockSummary, error) {
	var wire wireLastBlock
	if err := c.post(ctx, "/get_last_block", nil, &wire); err != nil {
		return 0, nil, &TransportError{Call: "get_last_block", Err: err}
	}
	if wire.Hash == "" {
		return 0, nil, nil
	}

	hash, err := bitcoinutil.HexToHash(wire.Hash)
	if err != nil {
		return 0, nil, &TransportError{Call: "get_last_block", Err: fmt.Errorf("parse hash: %w", err)}
	}
	target, err := bitwork.Parse(wire.Difficulty)
	if err != nil {
		return 0, nil, &TransportError{Call: "get_last_block", Err: fmt.Errorf("parse difficulty: %w", err)}
	}

	return wire.Height, &BlockSummary{
		Hash:          hash,
		Difficulty:    target,
		NextBlockTime: wire.NextBlockTime,
	}, nil
}

// Register implements Coordinator. A coordinator response of
// "already_existed" is treated the same as "created".
func (c *HTTPClient) Register(ctx context.Context, btcAddress, publicKeyHex string) (*MinerInfo, error) {
	req := wireRegisterRequest{BtcAddress: btcAddress, PublicKeyHex: publicKeyHex}
	var resp wireRegisterResponse
	if err := c.post(ctx, "/register", req, &resp); err != nil {
		return nil, &TransportError{Call: "register", Err: err}
	}
	return &MinerInfo{BtcAddress: resp.BtcAddress, PublicKeyHex: resp.PublicKeyHex}, nil
}

// Submit implements Coordinator.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	wireReq := wireSubmitRequest{
		BtcAddress:       req.BtcAddress,
		SignedCommitPSBT: req.SignedCommitPSBT,
		SignedRevealPSBT: req.SignedRevealPSBT,
		CyclesPrice:      req.CyclesPrice.String(),
	}
	var resp wireSubmitResponse
	if err := c.post(ctx, "/submit", wireReq, &resp); err != nil {
		return nil, &TransportError{Call: "submit", Err: err}
	}

	cyclesPrice, ok := new(big.Int).SetString(resp.CyclesPrice, 10)
	if !ok {
		return nil, &TransportError{Call: "submit", Err: fmt.Errorf("malformed cycles_price %q", resp.CyclesPrice)}
	}

	return &SubmitResponse{BlockHeight: resp.BlockHeight, CyclesPrice: cyclesPrice}, nil
}
