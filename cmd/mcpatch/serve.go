package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mcpatch-go/mcpatch/cmd"
	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/privateserver"
)

func serveMain(command *cobra.Command, arguments []string) error {
	cfg, err := loadManagerConfig()
	if err != nil {
		return err
	}

	if !cfg.BuiltinServer.Enabled {
		return errors.New("builtin-server.enabled is false in the manager configuration")
	}

	addr := fmt.Sprintf("%s:%d", cfg.BuiltinServer.ListenAddr, cfg.BuiltinServer.ListenPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", addr)
	}

	log := logging.Root.Sublogger("serve")

	// Close the listener on termination so Serve returns cleanly instead of
	// the process being killed mid-response.
	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, cmd.TerminationSignals...)
	go func() {
		<-terminate
		log.Info("received termination signal, shutting down")
		listener.Close()
	}()

	server := privateserver.New(listener, cfg.PublicDir, cfg.BuiltinServer, log)
	return server.Serve()
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve the public directory over the private protocol",
	Args:  cmd.DisallowArguments,
	Run:   cmd.Mainify(serveMain),
}
