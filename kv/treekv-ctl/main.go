package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/treekv/treekv/log"
)

var (
	logLevel string

	globalContext, globalCancel = context.WithCancel(context.Background())
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "treekv-ctl",
		Short: "treekv command line client",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetLevelByString(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.AddCommand(
		newShellCommand(),
		newQuorumCommand(),
		newGenPairsCommand(),
		newLoadCommand(),
		newBenchCommand(),
	)
	return rootCmd
}

func main() {
	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	closeDone := make(chan struct{}, 1)
	go func() {
		sig := <-sc
		fmt.Printf("\nGot signal [%v] to exit.\n", sig)
		globalCancel()

		select {
		case <-sc:
			fmt.Printf("\nGot signal [%v] again to exit.\n", sig)
			os.Exit(1)
		case <-time.After(10 * time.Second):
			fmt.Print("\nWait 10s for closed, force exit\n")
			os.Exit(1)
		case <-closeDone:
			return
		}
	}()

	cobra.EnablePrefixMatching = true
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(rootCmd.UsageString())
	}

	globalCancel()
	log.Sync()
	closeDone <- struct{}{}
}
