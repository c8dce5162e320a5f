package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/config"
	"github.com/GoPolymarket/polysession/internal/proxy"
	"github.com/GoPolymarket/polysession/internal/relay"
	"github.com/GoPolymarket/polysession/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli"
)

var (
	proxyCMD = cli.Command{
		Name:      "proxy",
		Usage:     "derive the proxy wallet address of a signer",
		ArgsUsage: "<address>",
		Action:    proxyAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "factory", Value: proxy.DefaultFactory, Usage: "proxy factory address"},
			cli.StringFlag{Name: "init-code-hash", Value: proxy.DefaultInitCodeHash, Usage: "proxy init code hash"},
		},
	}
	gasCMD = cli.Command{
		Name:      "gas",
		Usage:     "print the relay gas limit for a batch size",
		ArgsUsage: "<count>",
		Action:    gasAction,
	}
	statusCMD = cli.Command{
		Name:      "status",
		Usage:     "print the relayer state of a transaction",
		ArgsUsage: "<transactionId>",
		Action:    statusAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "relayer", Usage: "relayer base url (defaults to config)"},
			cli.BoolFlag{Name: "wait", Usage: "poll until mined, confirmed or failed"},
		},
	}
	walletCMD = cli.Command{
		Name:   "wallet",
		Usage:  "print the configured signer and its proxy",
		Action: walletAction,
	}
)

func proxyAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: relayctl proxy <address>", 2)
	}
	d, err := proxy.NewDeriver(c.String("factory"), c.String("init-code-hash"))
	if err != nil {
		return err
	}
	addr, err := d.DeriveHex(c.Args().First())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, addr)
	return err
}

func gasAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: relayctl gas <count>", 2)
	}
	n, err := strconv.Atoi(c.Args().First())
	if err != nil || n < 0 {
		return fmt.Errorf("invalid count %q", c.Args().First())
	}
	_, err = fmt.Fprintln(c.App.Writer, relay.ComputeGasLimit(n))
	return err
}

func statusAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: relayctl status <transactionId>", 2)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	baseURL := cfg.Relayer.BaseURL
	if u := c.String("relayer"); u != "" {
		baseURL = u
	}
	client := relay.NewClient(baseURL, cfg.Relayer.Timeout, auth.Credentials{}, relay.PollPolicy{
		Interval:    cfg.Relayer.PollInterval,
		MaxInterval: cfg.Relayer.PollMaxInterval,
		Multiplier:  1.5,
		MaxAttempts: cfg.Relayer.PollMaxAttempts,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	id := c.Args().First()
	var tx *relay.Transaction
	if c.Bool("wait") {
		tx, err = client.PollUntilState(ctx, id, []relay.State{relay.StateMined, relay.StateConfirmed}, relay.StateFailed)
	} else {
		tx, err = client.GetTransaction(ctx, id)
	}
	if err != nil {
		return err
	}
	return printJSON(c, map[string]interface{}{
		"transactionId":   id,
		"state":           tx.State,
		"transactionHash": tx.TransactionHash,
		"proxyAddress":    tx.ProxyAddress,
	})
}

func walletAction(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Wallet.PrivateKey == "" {
		return cli.NewExitError("wallet private key is not configured", 1)
	}
	s, err := signer.NewSigner(cfg.Wallet.PrivateKey, cfg.Chain.ID,
		common.HexToAddress(cfg.Contracts.Exchange), common.HexToAddress(cfg.Contracts.NegRiskExchange))
	if err != nil {
		return err
	}
	d, err := proxy.NewDeriver(cfg.Contracts.ProxyFactory, cfg.Contracts.ProxyInitCode)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]string{
		"eoaAddress":   s.Address().Hex(),
		"proxyAddress": d.Derive(s.Address()).Hex(),
	})
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
