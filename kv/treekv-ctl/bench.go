package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/juju/ratelimit"
	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/log"
)

var (
	benchTarget     targetFlags
	benchOps        int
	benchKeys       int
	benchQPS        float64
	benchWriteRatio float64
)

func newBenchCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "bench",
		Short: "Measure command latency against a server or a roster group",
		Args:  cobra.NoArgs,
		Run:   runBenchCommandFunc,
	}
	benchTarget.register(m, "")
	m.Flags().IntVar(&benchOps, "ops", 10000, "number of commands")
	m.Flags().IntVar(&benchKeys, "keys", 1000, "size of the key space")
	m.Flags().Float64Var(&benchQPS, "qps", 0, "commands per second, 0 for unlimited")
	m.Flags().Float64Var(&benchWriteRatio, "write-ratio", 0.5, "share of WRITE commands, the rest are READ")
	return m
}

func runBenchCommandFunc(cmd *cobra.Command, args []string) {
	exec, err := benchTarget.open()
	if err != nil {
		log.Fatal(err)
	}
	defer exec.Close()

	var limiter *ratelimit.Bucket
	if benchQPS > 0 {
		limiter = ratelimit.NewBucketWithRate(benchQPS, int64(benchQPS)+1)
	}
	result := runBench(exec, limiter, benchOps, benchKeys, benchWriteRatio)
	result.render(os.Stdout)
}

type benchResult struct {
	latencies map[command.Kind][]float64
	failures  map[command.Kind]int
	elapsed   time.Duration
}

func runBench(exec executor, limiter *ratelimit.Bucket, ops, keys int, writeRatio float64) *benchResult {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	res := &benchResult{
		latencies: make(map[command.Kind][]float64),
		failures:  make(map[command.Kind]int),
	}
	start := time.Now()
	for i := 0; i < ops && globalContext.Err() == nil; i++ {
		if limiter != nil {
			limiter.Wait(1)
		}
		key := "key" + strconv.Itoa(r.Intn(keys))
		kind, line := command.Read, command.Read.Alias()+" "+key
		if r.Float64() < writeRatio {
			kind, line = command.Write, command.Write.Alias()+" "+key+" v"+strconv.Itoa(i)
		}

		begin := time.Now()
		resp := exec.Do(globalContext, line)
		elapsed := time.Since(begin)
		if resp == command.ServerError || resp == command.Timeout {
			res.failures[kind]++
			continue
		}
		res.latencies[kind] = append(res.latencies[kind], float64(elapsed)/float64(time.Millisecond))
	}
	res.elapsed = time.Since(start)
	return res
}

func (res *benchResult) render(w io.Writer) {
	tb := tablewriter.NewWriter(w)
	tb.SetHeader([]string{"Command", "Count", "Failed", "OPS", "Avg(ms)", "P50(ms)", "P99(ms)", "Max(ms)"})
	for _, kind := range []command.Kind{command.Read, command.Write} {
		data := res.latencies[kind]
		if len(data) == 0 && res.failures[kind] == 0 {
			continue
		}
		mean, _ := stats.Mean(data)
		p50, _ := stats.Percentile(data, 50)
		p99, _ := stats.Percentile(data, 99)
		slowest, _ := stats.Max(data)
		tb.Append([]string{
			kind.String(),
			strconv.Itoa(len(data)),
			strconv.Itoa(res.failures[kind]),
			fmt.Sprintf("%.1f", float64(len(data))/res.elapsed.Seconds()),
			fmt.Sprintf("%.3f", mean),
			fmt.Sprintf("%.3f", p50),
			fmt.Sprintf("%.3f", p99),
			fmt.Sprintf("%.3f", slowest),
		})
	}
	tb.Render()
	fmt.Fprintf(w, "Takes(s): %.1f\n", res.elapsed.Seconds())
}
