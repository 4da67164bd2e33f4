package control

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Send sends one request to the daemon listening on socketPath and
// returns its response.
func Send(ctx context.Context, socketPath string, args []string) (*Response, error) {
	if len(args) == 0 {
		return nil, errors.New("no command given")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to %s", socketPath)
	}
	defer conn.Close()

	deadline := time.Now().Add(connTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(formatRequest(args) + "\n")); err != nil {
		return nil, errors.Wrap(err, "cannot send request")
	}

	line, err := bufio.NewReaderSize(conn, maxLineSize).ReadString('\n')
	if err != nil && line == "" {
		return nil, errors.Wrap(err, "no response from softapd")
	}
	return parseResponse(line)
}
