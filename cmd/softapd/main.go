package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/tomiamao/softap/internal/logging"
)

// Version of softapd, set at link time.
var Version = "dev"

// DefaultSocket is the control socket path.
const DefaultSocket = "/data/misc/wifi/softapd.sock"

// Prepare urfave cli app with all flags and commands defined.
func setupApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, c.App.Version)
	}

	app := &cli.App{
		Name:     "softapd",
		Usage:    "Wi-Fi SoftAP lifecycle manager",
		Version:  Version,
		HelpName: "softapd",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Value:   DefaultSocket,
				Usage:   "The control socket path",
				EnvVars: []string{"SOFTAPD_SOCKET"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Logging level: debug, info, warn or error",
				EnvVars: []string{"SOFTAPD_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			return logging.Setup(c.App.ErrWriter, c.String("log-level"))
		},
		Commands: []*cli.Command{
			serveCommand(),
			clientCommand("start", "Start the Wi-Fi driver", "[iface]"),
			clientCommand("stop", "Stop the Wi-Fi driver", "[iface]"),
			clientCommand("startap", "Start the access point", ""),
			clientCommand("stopap", "Stop the access point", ""),
			clientCommand("status", "Show the access point status", ""),
			clientCommand("set", "Configure the access point",
				"<wlan iface> <ap iface> <ssid> [broadcast|hidden] [channel] [open|wpa-psk|wpa2-psk] [passphrase] [preamble] [max clients]"),
			clientCommand("fwreload", "Switch the driver firmware", "<iface> <AP|P2P|STA>"),
			pskCommand(),
		},
	}

	return app
}

func main() {
	app := setupApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
