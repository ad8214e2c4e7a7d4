// Command resolvedemo resolves one hostname through a Reactor-driven
// Resolver and prints the resulting addresses, one per line.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	reactor "github.com/nat-halliday/go-reactor"
	"github.com/nat-halliday/go-reactor/addr"
	"github.com/nat-halliday/go-reactor/dns"
	"github.com/nat-halliday/go-reactor/dns/udpengine"
)

const (
	exitSuccess            = 0
	exitReactorInitFailure = 1
	exitSubmissionFailure  = 2
	exitResolutionFailure  = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("resolvedemo", flag.ContinueOnError)
	host := fs.String("host", "", "hostname to resolve")
	useTCP := fs.Bool("use_tcp", false, "force DNS-over-TCP")
	timeoutMs := fs.Int("timeout", 0, "per-query timeout in milliseconds (0 = engine default)")
	servers := fs.String("servers", "", "comma-separated nameserver list (empty = system config)")
	debug := fs.Bool("debug", false, "enable debug-level logging")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return exitReactorInitFailure
	}
	if *host == "" {
		fmt.Fprintln(stderr, "resolvedemo: --host is required")
		return exitReactorInitFailure
	}

	level := reactor.LevelWarn
	if *debug {
		level = reactor.LevelDebug
	}
	logger := reactor.NewWriterLogger(stderr, level)

	r, err := reactor.New(reactor.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "resolvedemo: reactor init failed: %v\n", err)
		return exitReactorInitFailure
	}
	defer r.Close()

	var engineServers []string
	if *servers != "" {
		engineServers = strings.Split(*servers, ",")
	}
	engine := udpengine.New(engineServers...)

	resolver := dns.New(r, engine,
		dns.WithUseTCP(*useTCP),
		dns.WithTimeout(*timeoutMs),
		dns.WithLogger(logger),
	)
	defer resolver.Close()

	if *servers != "" {
		if err := resolver.SetServers(*servers); err != nil {
			fmt.Fprintf(stderr, "resolvedemo: set servers failed: %v\n", err)
			return exitSubmissionFailure
		}
	}

	var (
		done    bool
		failed  bool
		results []string
	)
	// Resolve invokes the callback synchronously, before returning, in
	// every case where it hands back a nil query handle (channel init
	// failure, already-closed resolver, or a synchronous completion), so
	// done is already true whenever Resolve returns nil.
	resolver.Resolve(*host, dns.Unspecified, func(ok bool, addrs []addr.Address) {
		done = true
		if !ok {
			failed = true
			return
		}
		for _, a := range addrs {
			results = append(results, a.String())
		}
	})

	for !done {
		if _, err := r.Poll(); err != nil {
			fmt.Fprintf(stderr, "resolvedemo: poll failed: %v\n", err)
			return exitResolutionFailure
		}
	}

	if failed {
		fmt.Fprintln(stderr, "resolvedemo: resolution failed")
		return exitResolutionFailure
	}

	for _, line := range results {
		fmt.Fprintln(stdout, line)
	}
	return exitSuccess
}
