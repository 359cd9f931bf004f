package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const (
	readTimeout  = 60 * time.Second
	drainTimeout = 30 * time.Second

	// inheritedEnv marks a child started by a SIGUSR2 hand-off; its listener
	// arrives as fd 3.
	inheritedEnv = "LEDGER_INHERITED_LISTENER=1"
	inheritedFD  = 3
)

// Server is an http.Server that drains on SIGINT/SIGTERM and hands its
// listener to a fresh process on SIGUSR2. Stop hooks run once the last
// in-flight request finished.
type Server struct {
	*http.Server

	listener net.Listener
	signals  chan os.Signal
	done     chan struct{}
	stopOnce sync.Once
	hooks    []func()
}

// NewServer creates a Server for handler. Writes carry no deadline because
// the notice stream holds its connection open.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
		},
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

// OnStop registers fn to run after the server drained. Hooks run in
// registration order.
func (srv *Server) OnStop(fn func()) {
	srv.hooks = append(srv.hooks, fn)
}

// Listen binds the listening socket, reusing an inherited one after a hand-off.
func (srv *Server) Listen() error {
	if inherited() {
		ln, err := net.FileListener(os.NewFile(inheritedFD, "listener"))
		if err != nil {
			return fmt.Errorf("inherit listener: %w", err)
		}
		srv.listener = ln
		return nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv.listener = ln
	return nil
}

// ListenAddr is the bound address, nil before Listen.
func (srv *Server) ListenAddr() net.Addr {
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Serve handles requests until Stop completes. A clean stop returns nil.
func (srv *Server) Serve() error {
	if srv.listener == nil {
		return errors.New("serve before listen")
	}
	signal.Notify(srv.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	go srv.watchSignals()

	err := srv.Server.Serve(srv.listener)
	<-srv.done
	signal.Stop(srv.signals)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe binds and serves.
func (srv *Server) ListenAndServe() error {
	if err := srv.Listen(); err != nil {
		return err
	}
	return srv.Serve()
}

// Stop drains in-flight requests, then runs the stop hooks. Later calls are no-ops.
func (srv *Server) Stop() {
	srv.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			Sugar.Errorf("HTTP server shutdown error: %v", err)
		} else {
			Sugar.Info("HTTP server drained")
		}
		for _, fn := range srv.hooks {
			fn()
		}
		close(srv.done)
	})
}

func (srv *Server) watchSignals() {
	for {
		select {
		case <-srv.done:
			return
		case sig := <-srv.signals:
			switch sig {
			case syscall.SIGUSR2:
				pid, err := srv.handOff()
				if err != nil {
					Sugar.Errorf("hand-off failed, continue serving: %v", err)
					continue
				}
				Sugar.Infof("listener handed to pid %d, stopping", pid)
			default:
				Sugar.Infof("received %s, stopping", sig)
			}
			srv.Stop()
			return
		}
	}
}

func inherited() bool {
	for _, e := range os.Environ() {
		if e == inheritedEnv {
			return true
		}
	}
	return false
}

// handOff starts a copy of this binary that serves on the same socket.
func (srv *Server) handOff() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is %T, not TCP", srv.listener)
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer file.Close()

	env := []string{inheritedEnv}
	for _, e := range os.Environ() {
		if e != inheritedEnv {
			env = append(env, e)
		}
	}
	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}

// GraceServer serves handler on addr until a stop signal, then runs onStop.
func GraceServer(addr string, handler http.Handler, onStop ...func()) error {
	srv := NewServer(addr, handler)
	for _, fn := range onStop {
		srv.OnStop(fn)
	}
	return srv.ListenAndServe()
}
