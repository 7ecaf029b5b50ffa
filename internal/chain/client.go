package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/darkpool-labs/relaygate/internal/config"
)

// nullifierSpentSelector is the 4-byte selector of the darkpool's
// nullifierSpent(bytes32) view.
var nullifierSpentSelector = crypto.Keccak256([]byte("nullifierSpent(bytes32)"))[:4]

// Client answers the two chain questions the gateway needs: has a match
// nullifier been spent, and what does gas cost right now. The ethclient
// connection is dialed lazily so the gateway can start before the RPC
// endpoint is reachable.
type Client struct {
	rpcURL   string
	darkpool common.Address

	mu     sync.Mutex
	client *ethclient.Client

	gasPriceTTL time.Duration
	gasMu       sync.Mutex
	gasPrice    *big.Int
	gasPriceAt  time.Time
}

func NewClient(cfg *config.ChainConfig) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("chain rpc url is empty")
	}
	if !common.IsHexAddress(cfg.DarkpoolAddress) {
		return nil, fmt.Errorf("invalid darkpool address %q", cfg.DarkpoolAddress)
	}
	ttl := time.Duration(cfg.GasPriceTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Client{
		rpcURL:      strings.TrimSpace(cfg.RPCURL),
		darkpool:    common.HexToAddress(cfg.DarkpoolAddress),
		gasPriceTTL: ttl,
	}, nil
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}
	c.client = client
	return client, nil
}

// NullifierSpent calls the darkpool's nullifierSpent(bytes32) view. The
// calldata is packed by hand; the ABI is a single static word.
func (c *Client) NullifierSpent(ctx context.Context, nullifier common.Hash) (bool, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return false, err
	}

	data := make([]byte, 0, 4+32)
	data = append(data, nullifierSpentSelector...)
	data = append(data, nullifier.Bytes()...)

	msg := ethereum.CallMsg{
		To:   &c.darkpool,
		Data: data,
	}
	output, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return false, fmt.Errorf("rpc call failed: %w", err)
	}
	if len(output) < 32 {
		return false, fmt.Errorf("short nullifierSpent response: %d bytes", len(output))
	}
	return output[31] == 1, nil
}

// GasPriceWei returns the chain's suggested gas price, cached for the
// configured TTL so quote bursts do not hammer the RPC endpoint.
func (c *Client) GasPriceWei(ctx context.Context) (*big.Int, error) {
	c.gasMu.Lock()
	if c.gasPrice != nil && time.Since(c.gasPriceAt) < c.gasPriceTTL {
		price := new(big.Int).Set(c.gasPrice)
		c.gasMu.Unlock()
		return price, nil
	}
	c.gasMu.Unlock()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	c.gasMu.Lock()
	c.gasPrice = new(big.Int).Set(price)
	c.gasPriceAt = time.Now()
	c.gasMu.Unlock()

	return price, nil
}
