// Command asyncd starts the async task runtime: it installs the SIGCHLD
// disposition, opens the diagnostic log, binds the listening socket, and
// starts the worker pool that drives both the reactor and the HTTP/
// WebSocket acceptor.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/asyncd/asyncd/internal/config"
	"github.com/asyncd/asyncd/internal/httpserver"
	"github.com/asyncd/asyncd/internal/runtime/alloc"
	"github.com/asyncd/asyncd/internal/runtime/reactor"
	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/runtime/wake"
	"github.com/asyncd/asyncd/internal/runtime/worker"
	"github.com/asyncd/asyncd/internal/sysio"
	"github.com/asyncd/asyncd/pkg/logging"
)

func main() {
	cfg, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := setupLogging(cfg.LogPath)

	alloc.InitGlobal(cfg.ArenaSize)
	sysio.IgnoreSigchld()

	listenFd, err := httpserver.Listen(cfg.BindAddress, cfg.Port)
	if err != nil {
		log.Errorf("failed to bind %d.%d.%d.%d:%d: %v",
			cfg.BindAddress[0], cfg.BindAddress[1], cfg.BindAddress[2], cfg.BindAddress[3], cfg.Port, err)
		os.Exit(1)
	}

	table := task.NewTable(task.MaxSlots)
	sched := wake.NewScheduler(0)
	react := reactor.New(sched, log)
	pool := worker.New(table, sched, react, log)

	acceptor := httpserver.NewAcceptor(pool, react, listenFd, staticHandler, echoHandler, log)
	pool.Spawn(acceptor)

	mgmt := httpserver.NewManagementRouter(pool, log)
	go func() {
		mgmtAddr := fmt.Sprintf("%d.%d.%d.%d:%d",
			cfg.BindAddress[0], cfg.BindAddress[1], cfg.BindAddress[2], cfg.BindAddress[3], cfg.Port+1)
		log.Infof("management interface listening on %s", mgmtAddr)
		if err := http.ListenAndServe(mgmtAddr, mgmt); err != nil {
			log.Errorf("management interface stopped: %v", err)
		}
	}()

	log.Infof("asyncd listening on port %d with %d workers", cfg.Port, cfg.WorkerCount)
	pool.StartWorkers(cfg.WorkerCount)
}

func setupLogging(path string) *logging.Logger {
	output, err := logging.CreateCombinedOutput(path)
	if err != nil {
		output = os.Stdout
	}
	cfg := logging.DefaultConfig()
	cfg.Output = output
	cfg.Component = "asyncd"
	logging.InitGlobalLogger(cfg)
	return logging.GetGlobalLogger()
}

func staticHandler(request []byte) []byte {
	body := []byte("asyncd task runtime\n")
	return httpserver.OK("text/plain", body)
}

func echoHandler(opcode byte, payload []byte) []byte {
	return payload
}
