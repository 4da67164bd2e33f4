package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/tomiamao/softap/internal/control"
	"github.com/tomiamao/softap/internal/psk"
)

// clientTimeout covers the longest settle delays of the daemon.
const clientTimeout = 35 * time.Second

// clientCommand sends name and its arguments to the daemon and prints the
// response. A response other than 214 is returned as an error.
func clientCommand(name, usage, argsUsage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: argsUsage,
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(c.Context, clientTimeout)
			defer cancel()

			args := append([]string{name}, c.Args().Slice()...)
			resp, err := control.Send(ctx, c.String("socket"), args)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer, resp.String())
			if !resp.OK() {
				return errors.Errorf("%s failed: %s", name, resp.Code)
			}
			return nil
		},
	}
}

func pskCommand() *cli.Command {
	return &cli.Command{
		Name:      "psk",
		Usage:     "Print the WPA pre-shared key for an SSID and passphrase",
		ArgsUsage: "<ssid> <passphrase>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return errors.New("expected <ssid> <passphrase>")
			}
			fmt.Fprintln(c.App.Writer, psk.Derive(c.Args().Get(0), c.Args().Get(1)))
			return nil
		},
	}
}
