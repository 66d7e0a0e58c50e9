package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	macaroon "gopkg.in/macaroon.v2"

	"bitpos/internal/application/lightning"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

// Config locates an LND node. TLSCertPath and MacaroonPath point at the
// node's tls.cert and an invoice-scoped macaroon.
type Config struct {
	Host         string
	TLSCertPath  string
	MacaroonPath string
}

// Client implements the Lightning backend against an LND node over
// gRPC.
type Client struct {
	conn *grpc.ClientConn
	ln   lnrpc.LightningClient
	log  logger.Interface
}

var _ lightning.Backend = (*Client)(nil)

func NewClient(cfg Config, log logger.Interface) (*Client, error) {
	if cfg.Host == "" {
		return nil, apperrors.NewConfigurationError("lnd host is required")
	}
	if cfg.TLSCertPath == "" || cfg.MacaroonPath == "" {
		return nil, apperrors.NewConfigurationError("lnd tls certificate and macaroon paths are required")
	}

	tlsCreds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to load lnd tls certificate").WithCause(err)
	}

	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to read lnd macaroon").WithCause(err)
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, apperrors.NewConfigurationError("failed to parse lnd macaroon").WithCause(err)
	}

	macCred, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to build macaroon credential").WithCause(err)
	}

	conn, err := grpc.NewClient(cfg.Host,
		grpc.WithTransportCredentials(tlsCreds),
		grpc.WithPerRPCCredentials(macCred),
	)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to connect to lnd").WithCause(err)
	}

	return &Client{
		conn: conn,
		ln:   lnrpc.NewLightningClient(conn),
		log:  log.Named("lnd"),
	}, nil
}

func (c *Client) Name() string { return "lnd" }

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string, expiry time.Duration) (*lightning.Invoice, error) {
	resp, err := c.ln.AddInvoice(ctx, &lnrpc.Invoice{
		Value:  amountSats,
		Memo:   memo,
		Expiry: int64(expiry.Seconds()),
	})
	if err != nil {
		return nil, apperrors.NewNetworkError("lnd add invoice failed").WithCause(err)
	}

	return &lightning.Invoice{
		Bolt11:      resp.PaymentRequest,
		PaymentHash: hex.EncodeToString(resp.RHash),
	}, nil
}

func (c *Client) PaymentState(ctx context.Context, paymentHash string) (*lightning.PaymentState, error) {
	hash, err := hex.DecodeString(paymentHash)
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash %q: %w", paymentHash, err)
	}

	inv, err := c.ln.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: hash})
	if err != nil {
		return nil, apperrors.NewNetworkError("lnd invoice lookup failed").WithCause(err)
	}

	state := &lightning.PaymentState{}
	switch inv.State {
	case lnrpc.Invoice_SETTLED:
		state.Settled = true
		state.Preimage = hex.EncodeToString(inv.RPreimage)
	case lnrpc.Invoice_ACCEPTED:
		state.Pending = true
	}
	return state, nil
}
