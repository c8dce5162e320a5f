// Command relayctl inspects the proxy wallet and relayer state from a shell.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "relayctl"
	app.Usage = "Polymarket proxy wallet and relayer tooling"
	app.Commands = []cli.Command{
		proxyCMD,
		gasCMD,
		statusCMD,
		walletCMD,
	}
	return app
}
