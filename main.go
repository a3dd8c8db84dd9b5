package main

import (
	"bufio"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"talk2me/config"
	"talk2me/db"
	"talk2me/server"
)

const controlSocketPath = "/tmp/talk2me.sock"

func main() {
	cfg := config.Load()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	srvConfig := &server.ServerConfig{
		Addr:             cfg.Addr,
		SessionSecret:    cfg.SessionSecret,
		WriteTimeout:     time.Duration(cfg.WriteTimeout) * time.Second,
		HandshakeTimeout: time.Duration(cfg.HandshakeTimeout) * time.Second,
		SendBuffer:       cfg.SendBuffer,
	}

	srv := server.New(database, srvConfig)

	// Start control socket for management commands
	go startControlSocket(srv)

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		srv.Shutdown("maintenance")
		os.Remove(controlSocketPath)
		os.Exit(0)
	}()

	log.Fatal(srv.Start())
}

func startControlSocket(srv *server.Server) {
	// Remove existing socket file
	os.Remove(controlSocketPath)

	listener, err := net.Listen("unix", controlSocketPath)
	if err != nil {
		log.Printf("Failed to create control socket: %v", err)
		return
	}
	defer listener.Close()
	defer os.Remove(controlSocketPath)

	log.Printf("Control socket listening on %s", controlSocketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			continue
		}

		go handleControlCommand(srv, conn)
	}
}

func handleControlCommand(srv *server.Server, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}

	line = strings.TrimSpace(line)
	parts := strings.SplitN(line, "|", 2)

	if len(parts) == 0 {
		conn.Write([]byte("ERROR|Invalid command\n"))
		return
	}

	switch parts[0] {
	case "stats":
		conn.Write([]byte("OK|" + srv.Stats() + "\n"))

	case "shutdown":
		reason := "maintenance"
		if len(parts) >= 2 && parts[1] != "" {
			reason = parts[1]
		}

		conn.Write([]byte("OK|Shutting down\n"))
		conn.Close()

		// Give time for response to be sent
		time.Sleep(100 * time.Millisecond)

		log.Printf("Shutdown requested: reason=%s", reason)
		srv.Shutdown(reason)

		os.Remove(controlSocketPath)
		os.Exit(0)

	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}
