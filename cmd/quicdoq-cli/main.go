// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq_app/quicdoq_app.c
//

// Command quicdoq-cli is a demo DNS-over-QUIC client and server.
//
// Client: quicdoq-cli [options] server_name [port [queries...]]
// Server: quicdoq-cli [options] -c cert -k key -p port -d dns-server
//
// Each client query is name:RRTYPE, e.g. www.example.com:AAAA; the
// RRTYPE defaults to A when omitted. In server mode every received
// query is forwarded over UDP to the backend DNS server.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/miekg/dns"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/qlog"

	"github.com/private-octopus/quicdoq-go/dnswire"
	"github.com/private-octopus/quicdoq-go/quicdoq"
	"github.com/private-octopus/quicdoq-go/relay"
)

func main() {
	var (
		certFile  = flag.String("c", "", "server certificate file (PEM)")
		keyFile   = flag.String("k", "", "server key file (PEM)")
		port      = flag.Int("p", quicdoq.DefaultPort, "server port")
		backend   = flag.String("d", "1.1.1.1:53", "name or address of the backend UDP DNS server")
		sni       = flag.String("n", "", "sni (default: server name)")
		alpn      = flag.String("a", quicdoq.ALPN, "alpn")
		binDir    = flag.String("b", "", "binary logging directory (not supported by this QUIC stack)")
		qlogDir   = flag.String("q", "", "qlog logging directory")
		trustFile = flag.String("t", "", "root trust file (PEM); without it the client skips verification")
		ccAlgo    = flag.String("G", "", "congestion control algorithm (not supported by this QUIC stack)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "quicdoq: ", log.LstdFlags)
	if *binDir != "" {
		logger.Printf("ignoring -b %s: binary logging is not supported by this QUIC stack", *binDir)
	}
	if *ccAlgo != "" {
		logger.Printf("ignoring -G %s: congestion control selection is not supported by this QUIC stack", *ccAlgo)
	}

	var err error
	if flag.NArg() > 0 {
		err = runClient(logger, flag.Args(), *port, *sni, *alpn, *trustFile, *qlogDir)
	} else {
		err = runServer(logger, *certFile, *keyFile, *port, *backend, *alpn, *qlogDir)
	}
	if err != nil {
		logger.Fatal(err)
	}
}

// quicConfigFor builds the per-role quic configuration, optionally
// enabling qlog traces into qlogDir.
func quicConfigFor(isServer bool, qlogDir string) *quic.Config {
	cfg := quicdoq.DefaultTransportParams(isServer)
	if qlogDir != "" {
		os.Setenv("QLOGDIR", qlogDir)
		cfg.Tracer = qlog.DefaultConnectionTracer
	}
	return cfg
}

func runServer(logger *log.Logger, certFile, keyFile string, port int, backend, alpn, qlogDir string) error {
	if certFile == "" || keyFile == "" {
		return fmt.Errorf("server mode requires both -c and -k")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("loading server credentials: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
	}

	backendAddr, err := net.ResolveUDPAddr("udp", withDefaultPort(backend, "53"))
	if err != nil {
		return fmt.Errorf("resolving backend DNS server: %w", err)
	}
	pc, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return fmt.Errorf("opening relay socket: %w", err)
	}

	ln, err := quicdoq.ListenQUIC(fmt.Sprintf(":%d", port), tlsConfig, quicConfigFor(true, qlogDir))
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	defer ln.Close()
	logger.Printf("serving DoQ at %s, relaying to %s", ln.Addr(), backendAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var r *relay.Relay
	svc := quicdoq.NewService(func(code quicdoq.ReturnCode, q *quicdoq.Query) {
		r.Callback(code, q)
	}, nil)
	svc.SetLogger(logger)
	r = relay.New(svc, pc, backendAddr)
	r.SetLogger(logger)

	go r.Run(ctx)
	err = svc.Serve(ctx, ln)
	if ctx.Err() != nil {
		return nil // clean shutdown on interrupt
	}
	return err
}

// withDefaultPort appends port when addr does not already carry one, so
// -d accepts both "1.1.1.1" and "192.0.2.1:5353".
func withDefaultPort(addr, port string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, port)
}

// hostPort is the dialable form of the server_name/port positionals.
type hostPort string

func (hostPort) Network() string  { return "udp" }
func (a hostPort) String() string { return string(a) }

func runClient(logger *log.Logger, args []string, port int, sni, alpn, trustFile, qlogDir string) error {
	serverName := args[0]
	if len(args) >= 2 {
		p, err := strconv.Atoi(args[1])
		if err != nil || p <= 0 {
			return fmt.Errorf("invalid port: %s", args[1])
		}
		port = p
	}
	queries := args[2:]
	if len(queries) == 0 {
		queries = []string{"example.com:A"}
	}
	if sni == "" {
		sni = serverName
	}

	tlsConfig := &tls.Config{
		ServerName: sni,
		NextProtos: []string{alpn},
	}
	if trustFile != "" {
		pem, err := os.ReadFile(trustFile)
		if err != nil {
			return fmt.Errorf("reading trust file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("no usable certificates in %s", trustFile)
		}
		tlsConfig.RootCAs = pool
	} else {
		logger.Printf("no -t trust file given, skipping certificate verification")
		tlsConfig.InsecureSkipVerify = true
	}

	svc := quicdoq.NewService(nil, &quicdoq.QUICDialer{
		TLSConfig:  tlsConfig,
		QUICConfig: quicConfigFor(false, qlogDir),
	})
	svc.SetLogger(logger)
	defer svc.Close()

	addr := hostPort(net.JoinHostPort(serverName, strconv.Itoa(port)))
	ctx := context.Background()

	var wg sync.WaitGroup
	failures := make(chan error, len(queries))
	for i, text := range queries {
		wire, err := encodeQueryText(text)
		if err != nil {
			return fmt.Errorf("query %q: %w", text, err)
		}
		wg.Add(1)
		q := quicdoq.NewQuery(sni, addr, wire, func(code quicdoq.ReturnCode, q *quicdoq.Query) {
			switch code {
			case quicdoq.ResponsePartial:
				printResponse(logger, q)
			case quicdoq.ResponseComplete:
				printResponse(logger, q)
				wg.Done()
			case quicdoq.QueryCancelled:
				failures <- fmt.Errorf("query %q cancelled: %v", text, q.Err)
				wg.Done()
			case quicdoq.QueryFailed:
				failures <- fmt.Errorf("query %q failed: %v", text, q.Err)
				wg.Done()
			}
		})
		q.ID = uint16(i)
		if err := svc.PostQuery(ctx, q); err != nil {
			return err
		}
	}
	wg.Wait()

	close(failures)
	nfail := 0
	for err := range failures {
		nfail++
		logger.Print(err)
	}
	if nfail > 0 {
		return fmt.Errorf("%d queries did not complete", nfail)
	}
	return nil
}

// encodeQueryText turns a name:RRTYPE argument into on-wire query
// bytes. The RRTYPE may be a mnemonic or a decimal number and defaults
// to A; the message ID is zero as DoQ requires.
func encodeQueryText(text string) ([]byte, error) {
	name := text
	qtype := uint16(dns.TypeA)
	if i := strings.LastIndexByte(text, ':'); i >= 0 {
		name = text[:i]
		qtype = dnswire.RRTypeByName(text[i+1:])
		if qtype == dnswire.TypeUnknown {
			return nil, fmt.Errorf("unknown RRTYPE %q", text[i+1:])
		}
	}
	return dnswire.NewExchangeQuery(name, qtype, 1232)
}

// printResponse renders a completed response in the JSON logging shape.
func printResponse(logger *log.Logger, q *quicdoq.Query) {
	rendered, err := dnswire.ToJSON(q.ResponseData)
	if err != nil {
		logger.Printf("cannot render response for query #%d: %v", q.ID, err)
		return
	}
	fmt.Printf("%s\n", rendered)
}
