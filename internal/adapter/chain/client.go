package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"agentpay/config"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// erc20ABI covers the single read the balance oracle needs.
const erc20ABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// evmBackend is the subset of ethclient.Client the oracle uses.
type evmBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client implements ports.ChainClient against an EVM RPC endpoint. It reads
// the USDC token balance and the native gas balance of custodial wallets.
type Client struct {
	backend evmBackend
	token   common.Address
	abi     abi.ABI
	closer  func()
}

// New dials the configured RPC endpoint.
func New(ctx context.Context, cfg config.ChainConfig, log zerolog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain rpc_url is not configured")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain rpc: %w", err)
	}

	client, err := newWithBackend(eth, cfg.TokenContract)
	if err != nil {
		eth.Close()
		return nil, err
	}
	client.closer = eth.Close

	log.Info().
		Str("network", cfg.Network).
		Int64("chain_id", cfg.ChainID).
		Str("token", cfg.TokenContract).
		Msg("chain client connected")

	return client, nil
}

func newWithBackend(backend evmBackend, tokenContract string) (*Client, error) {
	if !common.IsHexAddress(tokenContract) {
		return nil, fmt.Errorf("invalid token contract address %q", tokenContract)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing erc20 abi: %w", err)
	}

	return &Client{
		backend: backend,
		token:   common.HexToAddress(tokenContract),
		abi:     parsed,
	}, nil
}

// TokenBalance returns the USDC balance of an address in base units.
func (c *Client) TokenBalance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	data, err := c.abi.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, fmt.Errorf("packing balanceOf call: %w", err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling balanceOf: %w", err)
	}

	results, err := c.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpacking balanceOf result: %w", err)
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}
	return balance, nil
}

// NativeBalance returns the native token balance of an address in wei.
func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("reading native balance: %w", err)
	}
	return balance, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}
