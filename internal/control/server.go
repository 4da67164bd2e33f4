package control

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tomiamao/softap/internal/softap"
)

// SocketMode is the permission of the control socket.
const SocketMode = 0o660

// connTimeout bounds one request/response exchange. It covers the settle
// delays of the slowest operation.
const connTimeout = 30 * time.Second

// A Supervisor is the set of operations exposed over the socket.
type Supervisor interface {
	StartDriver(iface string) error
	StopDriver(iface string) error
	StartAP() error
	StopAP() error
	Configure(args []string) error
	ReloadFirmware(args []string) error
	Status() *softap.Status
}

// A Server answers control requests.
type Server struct {
	sup Supervisor
	wg  sync.WaitGroup
}

// NewServer creates a Server dispatching to sup.
func NewServer(sup Supervisor) *Server {
	return &Server{sup: sup}
}

// Listen creates the unix socket at path, replacing a stale one.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "cannot remove stale socket %s", path)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot listen on %s", path)
	}
	if err := os.Chmod(path, SocketMode); err != nil {
		_ = ln.Close()
		return nil, errors.Wrapf(err, "cannot set permissions of %s", path)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is done. It closes ln and
// waits for the connections in flight before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	log.WithField("address", ln.Addr().String()).Info("Control socket ready")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "control socket accept failed")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	r := bufio.NewReaderSize(conn, maxLineSize)
	line, err := r.ReadSlice('\n')
	if err != nil && len(line) == 0 {
		log.WithError(err).Debug("Control connection closed without a request")
		return
	}
	if errors.Is(err, bufio.ErrBufferFull) {
		s.reply(conn, &Response{Code: softap.CommandSyntaxError, Message: "request too long"})
		return
	}

	s.reply(conn, s.Handle(string(line)))
}

func (s *Server) reply(conn net.Conn, resp *Response) {
	if _, err := fmt.Fprintln(conn, resp.String()); err != nil {
		log.WithError(err).Warn("Cannot write control response")
	}
}

// Handle executes one request line.
func (s *Server) Handle(line string) *Response {
	args, err := splitRequest(line)
	if err != nil {
		return &Response{Code: softap.CommandSyntaxError, Message: err.Error()}
	}
	if len(args) == 0 {
		return &Response{Code: softap.CommandSyntaxError, Message: "empty request"}
	}

	op, args := args[0], args[1:]
	log.WithFields(log.Fields{"command": op, "args": len(args)}).Debug("Control request")

	switch op {
	case "start":
		return result(s.sup.StartDriver(optionalIface(args)))
	case "stop":
		return result(s.sup.StopDriver(optionalIface(args)))
	case "startap":
		return result(s.sup.StartAP())
	case "stopap":
		return result(s.sup.StopAP())
	case "set":
		return result(s.sup.Configure(args))
	case "fwreload":
		return result(s.sup.ReloadFirmware(args))
	case "status":
		return &Response{Code: softap.SoftapStatusResult, Message: formatStatus(s.sup.Status())}
	}
	return &Response{Code: softap.CommandSyntaxError, Message: fmt.Sprintf("unknown command %q", op)}
}

func optionalIface(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func result(err error) *Response {
	code := softap.Code(err)
	if err != nil {
		return &Response{Code: code, Message: err.Error()}
	}
	return &Response{Code: code, Message: "Ok"}
}

// formatStatus renders st as space separated key=value pairs.
func formatStatus(st *softap.Status) string {
	kv := []string{
		fmt.Sprintf("running=%t", st.Running),
		"iface=" + quoteArg(st.ApIface),
	}
	if st.Pid > 0 {
		kv = append(kv, fmt.Sprintf("pid=%d", st.Pid))
	}
	if st.IfaceType != "" {
		kv = append(kv, "type="+quoteArg(st.IfaceType))
	}
	if p := st.Process; p != nil {
		kv = append(kv, fmt.Sprintf("rss=%d", p.RSS))
		if !p.StartedAt.IsZero() {
			kv = append(kv, "started="+p.StartedAt.UTC().Format(time.RFC3339))
		}
	}
	if c := st.Config; c != nil {
		kv = append(kv,
			"ssid="+quoteArg(c.SSID),
			fmt.Sprintf("channel=%d", c.Channel),
			fmt.Sprintf("hidden=%t", c.Hidden),
			"security="+string(c.Security),
		)
	}
	return strings.Join(kv, " ")
}
