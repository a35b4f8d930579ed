// Command tracecapd is a minimal standalone harness that loads a YAML
// config (config.Load) and runs tracecap's network listener until
// interrupted — the convenience entry point named in SPEC_FULL.md §3 for
// deployments that want the profiler reachable over TCP without
// embedding profiler.Profiler in another binary themselves.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	profiler "github.com/tracecap/tracecap"
	"github.com/tracecap/tracecap/config"
)

func main() {
	flagConfig := flag.String("config", "", "path to a tracecapd YAML config (optional)")
	flag.Parse()

	p := profiler.New()

	addr := ":28077"
	if *flagConfig != "" {
		c, err := config.Load(*flagConfig)
		if err != nil {
			log.Fatal(err)
		}
		p.UseConfig(c)
		if c.ListenAddr != "" {
			addr = c.ListenAddr
		}
		if c.ContextSwitchLogPath != "" {
			p.SetContextSwitchLogFilename(c.ContextSwitchLogPath)
		}
		if c.EventTracingEnabled {
			p.SetEventTracingEnabled(true)
			p.SetLowPriorityEventTracing(c.LowPriorityEventTracing)
		}
	}

	if err := p.StartListen(addr); err != nil {
		log.Fatal(err)
	}
	log.Printf("tracecapd listening on %s", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	p.StopListen()
	log.Printf("tracecapd stopped")
}
