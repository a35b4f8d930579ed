// Command tracecapdump prints the contents of a tracecap capture file
// (grounded on the shape of aclements/go-perf's cmd/perfdump: flag-driven
// input selection, capture.NewReader in place of perffile.Open, fmt-based
// structured dump).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tracecap/tracecap/capture"
)

func main() {
	var (
		flagInput   = flag.String("i", "capture.tracecap", "input capture `file`")
		flagSummary = flag.Bool("summary", false, "print a per-thread block/CS count and duration table instead of the raw record dump")
	)
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	r, f, err := capture.Open(*flagInput)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	fmt.Printf("%+v\n", r.Header)
	fmt.Printf("descriptors:\n")
	for _, d := range r.Descriptors {
		fmt.Printf("  %+v\n", d)
	}

	if *flagSummary {
		dumpSummary(r)
		return
	}
	dumpRaw(r)
}

func dumpRaw(r *capture.Reader) {
	for {
		sec, err := r.Next()
		if err != nil {
			break
		}
		fmt.Printf("thread tid=%d name=%q\n", sec.TID, sec.Name)
		for _, cs := range sec.ContextSwitches {
			fmt.Printf("  cs %+v\n", cs)
		}
		for _, b := range sec.Blocks {
			fmt.Printf("  block %+v\n", b)
		}
		for _, v := range sec.Values {
			fmt.Printf("  value %+v\n", v)
		}
	}
}

// threadSummary is the per-thread row printed by -summary, in the spirit
// of original_source/src/reader.cpp's load-time summary but without any
// call-tree reconstruction (an explicit Non-goal).
type threadSummary struct {
	tid        uint32
	name       string
	blockCount int
	csCount    int
	totalTicks uint64
}

func dumpSummary(r *capture.Reader) {
	var rows []threadSummary
	for {
		sec, err := r.Next()
		if err != nil {
			break
		}
		row := threadSummary{tid: sec.TID, name: sec.Name, csCount: len(sec.ContextSwitches)}
		row.blockCount = len(sec.Blocks) + len(sec.Values)
		for _, b := range sec.Blocks {
			row.totalTicks += b.End - b.Begin
		}
		rows = append(rows, row)
	}

	fmt.Printf("%-8s %-20s %10s %8s %14s\n", "tid", "name", "blocks", "cs", "total_ticks")
	for _, row := range rows {
		fmt.Printf("%-8d %-20s %10d %8d %14d\n", row.tid, row.name, row.blockCount, row.csCount, row.totalTicks)
	}
}
