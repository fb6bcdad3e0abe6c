package main

import (
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/kv/server"
	"github.com/treekv/treekv/kv/storage/standalone_storage"
	"github.com/treekv/treekv/log"
)

var (
	configPath = flag.String("config", "", "config file path")
	storeAddr  = flag.String("addr", "", "store address")
	statusAddr = flag.String("status", "", "status address, empty to disable")
	dataDir    = flag.String("data", "", "directory holding the tree logs")
	rosterPath = flag.String("roster", "", "roster file; starts every local node of --group in this process")
	group      = flag.String("group", config.DefaultGroup, "roster group")
)

type node struct {
	srv   *server.Server
	store *standalone_storage.StandAloneStorage
}

func main() {
	flag.Parse()
	conf := config.NewDefaultConfig()
	if *configPath != "" {
		if err := conf.LoadFile(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	if *storeAddr != "" {
		conf.StoreAddr = *storeAddr
	}
	if isFlagPassed("status") {
		conf.StatusAddr = *statusAddr
	}
	if *dataDir != "" {
		conf.DataDir = *dataDir
	}
	log.SetLevelByString(conf.LogLevel)
	if conf.LogFile != "" {
		log.SetRotateFile(conf.LogFile, 300, 7, 30)
	}
	defer log.Sync()
	log.Infof("conf %+v", conf)

	confs := []*config.Config{conf}
	if *rosterPath != "" {
		confs = rosterConfigs(conf)
	}

	nodes := make([]*node, 0, len(confs))
	for _, c := range confs {
		if err := c.Validate(); err != nil {
			log.Fatal(err)
		}
		nodes = append(nodes, startNode(c))
	}
	handleSignal(nodes)

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n *node) {
			defer wg.Done()
			<-n.srv.Done()
			if err := n.store.Stop(); err != nil {
				log.Errorf("flush log of %s: %v", n.srv.Addr(), err)
			}
		}(n)
	}
	wg.Wait()
	log.Info("Server stopped.")
}

func isFlagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

// rosterConfigs derives one config per local entry of the roster group. Only the first node keeps the status server.
func rosterConfigs(base *config.Config) []*config.Config {
	addrs, err := config.LoadRoster(*rosterPath, *group)
	if err != nil {
		log.Fatal(err)
	}
	var confs []*config.Config
	for _, addr := range addrs {
		if !addr.IsLocal() {
			log.Infof("skip remote node %s", addr)
			continue
		}
		c := base.Clone(addr.String())
		if len(confs) == 0 {
			c.StatusAddr = base.StatusAddr
		}
		confs = append(confs, c)
	}
	if len(confs) == 0 {
		log.Fatalf("roster group %q in %s has no local nodes", *group, *rosterPath)
	}
	return confs
}

func startNode(conf *config.Config) *node {
	store, err := standalone_storage.NewStandAloneStorage(conf)
	if err != nil {
		log.Fatal(err)
	}
	if err := store.Start(); err != nil {
		log.Fatal(err)
	}
	srv := server.NewServer(conf, store)
	if err := srv.Start(); err != nil {
		log.Fatal(err)
	}
	return &node{srv: srv, store: store}
}

func handleSignal(nodes []*node) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		log.Infof("Got signal [%s] to exit.", sig)
		for _, n := range nodes {
			n.srv.Stop()
		}
	}()
}
