package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/kv/quorum"
	"github.com/treekv/treekv/log"
)

var shellTarget targetFlags

func newShellCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "shell",
		Short: "Interactive client for a single server",
		Args:  cobra.NoArgs,
		Run:   runShellCommandFunc,
	}
	m.Flags().StringVar(&shellTarget.addr, "addr", "127.0.0.1:6379", "server address")
	m.Flags().DurationVar(&shellTarget.timeout, "timeout", config.DefaultClientTimeout, "timeout of one command")
	return m
}

func runShellCommandFunc(cmd *cobra.Command, args []string) {
	exec, err := shellTarget.open()
	if err != nil {
		log.Fatal(err)
	}
	defer exec.Close()
	fmt.Printf("Connected to %s\n", shellTarget.addr)
	shellLoop(shellTarget.addr+"> ", func(words []string) bool {
		return false
	}, exec)
}

const shellHelp = `Commands:
  GET key | PUT key value | CONTAINS key
  TRANSACT key [key ...] | COMMIT | ABORT
  SHUTDOWN
  help | exit`

// parseLine splits a line the way a shell would. The second result is false for blank or unparsable lines.
func parseLine(line string) ([]string, bool) {
	words, err := shellwords.Parse(line)
	if err != nil {
		fmt.Printf("invalid input: %v\n", err)
		return nil, false
	}
	return words, len(words) > 0
}

// shellLoop reads command lines until exit. Lines the local handler consumes never reach the servers.
func shellLoop(prompt string, local func(words []string) bool, exec executor) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       "/tmp/treekv-ctl.history",
		InterruptPrompt:   "^C",
		EOFPrompt:         "^D",
		HistorySearchFold: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()

	for {
		line, err := l.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return
			}
			continue
		}
		words, ok := parseLine(line)
		if !ok {
			continue
		}
		switch strings.ToLower(words[0]) {
		case "exit", "quit":
			return
		case "help":
			fmt.Println(shellHelp)
			continue
		}
		if local(words) {
			continue
		}
		fmt.Println(strings.TrimRight(exec.Do(globalContext, strings.Join(words, " ")), "\n"))
	}
}

var quorumTarget targetFlags

func newQuorumCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "quorum",
		Short: "Interactive client voting over a roster group",
		Args:  cobra.NoArgs,
		Run:   runQuorumCommandFunc,
	}
	quorumTarget.register(m, "config.yml")
	return m
}

func runQuorumCommandFunc(cmd *cobra.Command, args []string) {
	if quorumTarget.roster == "" {
		log.Fatal("quorum needs a roster file")
	}
	exec, err := quorumTarget.open()
	if err != nil {
		log.Fatal(err)
	}
	defer exec.Close()
	client := exec.(*quorum.Client)
	fmt.Printf("Roster %q: %v\n", quorumTarget.group, client.Servers())
	shellLoop("quorum> ", func(words []string) bool {
		switch strings.ToLower(words[0]) {
		case "reset":
			client.Reset()
			fmt.Println("operation discarded")
			return true
		case "servers":
			for _, s := range client.Servers() {
				fmt.Println(s)
			}
			return true
		}
		return false
	}, client)
}
