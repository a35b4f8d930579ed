// Command tracecapctl is a small flag-driven client for tracecap's
// network listener (spec §4.8/§6.2), grounded on the shape of
// aclements/go-perf's cmd/dump: parse flags, do one thing, print the
// result, log.Fatal on error.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tracecap/tracecap/internal/netlisten"
)

func main() {
	var (
		flagAddr = flag.String("addr", "127.0.0.1:28077", "tracecap listener `address`")
		flagCmd  = flag.String("cmd", "status", "command: status, start, stop, descriptions, fps")
		flagOut  = flag.String("o", "capture.tracecap", "output `file` for the stop command's capture stream")
	)
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	c, err := netlisten.Dial(*flagAddr)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	switch *flagCmd {
	case "status":
		fmt.Printf("%+v\n", c.Status)
	case "start":
		if err := c.StartCapture(); err != nil {
			log.Fatal(err)
		}
		fmt.Println("capturing started")
	case "stop":
		data, err := c.StopCapture()
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(*flagOut, data, 0o644); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %d bytes to %s\n", len(data), *flagOut)
	case "descriptions":
		data, err := c.BlocksDescription()
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(*flagOut, data, 0o644); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %d bytes to %s\n", len(data), *flagOut)
	case "fps":
		maxMicros, avgMicros, err := c.MainThreadFps()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("max=%dus avg=%dus\n", maxMicros, avgMicros)
	default:
		flag.Usage()
		os.Exit(1)
	}
}
