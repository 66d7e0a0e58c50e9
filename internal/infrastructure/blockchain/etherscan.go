package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bitpos/internal/application/usdt"
	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

const defaultEtherscanBaseURL = "https://api.etherscan.io"

// Etherscan V2 chain IDs for the supported EVM networks.
const (
	chainIDEthereum = 1
	chainIDPolygon  = 137
)

// EVMConfig holds the Etherscan V2 API coordinates. One API key serves
// every chain through the chainid parameter.
type EVMConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// EVMMonitor reads ERC-20 USDT transfers through the Etherscan V2 API.
// One instance serves one network.
type EVMMonitor struct {
	network payment.Network
	chainID int
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Interface
}

var _ usdt.TransactionMonitor = (*EVMMonitor)(nil)

func NewEVMMonitor(network payment.Network, cfg EVMConfig, log logger.Interface) (*EVMMonitor, error) {
	var chainID int
	switch network {
	case payment.NetworkETH:
		chainID = chainIDEthereum
	case payment.NetworkPOL:
		chainID = chainIDPolygon
	default:
		return nil, apperrors.NewConfigurationError("unsupported EVM network", network.String())
	}
	if cfg.APIKey == "" {
		return nil, apperrors.NewConfigurationError("etherscan API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEtherscanBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &EVMMonitor{
		network: network,
		chainID: chainID,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log.Named(network.String() + "-monitor"),
	}, nil
}

func (m *EVMMonitor) Network() payment.Network { return m.network }

type tokenTx struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	TimeStamp     string `json:"timeStamp"`
	Confirmations string `json:"confirmations"`
}

type tokenTxResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Result  []tokenTx `json:"result"`
}

func (m *EVMMonitor) RecentTransfers(ctx context.Context, address string, since time.Time) ([]usdt.Transfer, error) {
	q := url.Values{}
	q.Set("chainid", strconv.Itoa(m.chainID))
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("contractaddress", m.network.USDTContractAddress())
	q.Set("address", address)
	q.Set("page", "1")
	q.Set("offset", "50")
	q.Set("sort", "desc")
	q.Set("apikey", m.apiKey)

	endpoint := m.baseURL + "/v2/api?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("etherscan request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("etherscan returned status %d", resp.StatusCode))
	}

	var body tokenTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode etherscan response: %w", err)
	}

	// Status "0" with "No transactions found" is an empty result, not
	// an error.
	if body.Status != "1" && body.Message != "No transactions found" {
		return nil, fmt.Errorf("etherscan query failed: %s", body.Message)
	}

	transfers := make([]usdt.Transfer, 0, len(body.Result))
	for _, t := range body.Result {
		amount, err := strconv.ParseUint(t.Value, 10, 64)
		if err != nil {
			m.log.Warnw("skipping transfer with unparseable value",
				"tx_hash", t.Hash,
				"value", t.Value,
			)
			continue
		}
		ts, err := strconv.ParseInt(t.TimeStamp, 10, 64)
		if err != nil {
			continue
		}
		when := time.Unix(ts, 0).UTC()
		if when.Before(since) {
			continue
		}
		confirmations, _ := strconv.Atoi(t.Confirmations)

		transfers = append(transfers, usdt.Transfer{
			TxHash:        t.Hash,
			From:          t.From,
			To:            t.To,
			Amount:        amount,
			Confirmations: confirmations,
			Timestamp:     when,
		})
	}
	return transfers, nil
}
