package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/util/pairgen"
	"github.com/treekv/treekv/kv/wal"
	"github.com/treekv/treekv/log"
)

var (
	wordsFile string
	pairsFile string
	pairCount int
	pairSeed  int64
)

func newGenPairsCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "gen-pairs",
		Short: "Generate a file of unique key=value pairs from a word list",
		Args:  cobra.NoArgs,
		Run:   runGenPairsCommandFunc,
	}
	m.Flags().StringVar(&wordsFile, "words", "words.txt", "word list, one word per line")
	m.Flags().StringVar(&pairsFile, "out", "1-million-pairs.txt", "output file")
	m.Flags().IntVar(&pairCount, "count", 1000000, "number of pairs")
	m.Flags().Int64Var(&pairSeed, "seed", 0, "random seed, 0 for the current time")
	return m
}

func runGenPairsCommandFunc(cmd *cobra.Command, args []string) {
	if err := genPairs(wordsFile, pairsFile, pairCount, pairSeed); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d pairs written to %s\n", pairCount, pairsFile)
}

func genPairs(wordsPath, outPath string, count int, seed int64) error {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))

	in, err := os.Open(wordsPath)
	if err != nil {
		return errors.Trace(err)
	}
	words, err := pairgen.ReadWords(in)
	in.Close()
	if err != nil {
		return errors.Annotatef(err, "read %s", wordsPath)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Trace(err)
	}
	if err := pairgen.Write(out, pairgen.Vocabulary(words, r), count, r); err != nil {
		out.Close()
		return errors.Trace(err)
	}
	return errors.Trace(out.Close())
}

var loadTarget targetFlags

func newLoadCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "load pairs-file",
		Short: "Write every pair of a pair file to the cluster",
		Args:  cobra.ExactArgs(1),
		Run:   runLoadCommandFunc,
	}
	loadTarget.register(m, "")
	return m
}

func runLoadCommandFunc(cmd *cobra.Command, args []string) {
	exec, err := loadTarget.open()
	if err != nil {
		log.Fatal(err)
	}
	defer exec.Close()

	start := time.Now()
	written, failed, err := loadPairs(exec, args[0])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("loaded %d pairs from %s in %v, %d failed\n", written, args[0], time.Since(start), failed)
}

// loadPairs sends one WRITE per pair in file order. Pairs the cluster rejects are counted, not retried.
func loadPairs(exec executor, path string) (int, int, error) {
	written, failed := 0, 0
	_, err := wal.Replay(path, func(key, value string) error {
		if err := globalContext.Err(); err != nil {
			return errors.Trace(err)
		}
		resp := exec.Do(globalContext, command.Write.Alias()+" "+key+" "+value)
		switch resp {
		case command.ServerError, command.Timeout, command.KeyLocked, command.ShutdownInProgress:
			log.Warnf("write %s failed: %s", key, resp)
			failed++
		default:
			written++
		}
		return nil
	})
	return written, failed, err
}
