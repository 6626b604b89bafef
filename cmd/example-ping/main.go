// Command example-ping is a thin consumer of the client runtime: it
// answers "Ping" RPC requests with a "Pong" payload and republishes
// every "Echo" event it receives back out under the same key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/skytfs/streammesh/internal/client"
	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/pkg/logger"
)

func main() {
	host := flag.String("host", "127.0.0.1:7700", "broker address")
	addr := flag.String("addr", "ping", "this participant's address")
	accessKey := flag.String("access-key", "", "broker access key")
	flag.Parse()

	log := logger.New(*addr)

	c, err := client.Dial(client.Config{Host: *host, Addr: *addr, AccessKey: *accessKey}, log)
	if err != nil {
		log.Fatal("dial failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eventHandler := func(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte) {
		log.Info("echo from %s: %s", meta.Tx, string(payload))
		if err := c.Publish(message.Broadcast, "Echo", payload); err != nil {
			log.Error("failed to republish echo: %v", err)
		}
	}

	rpcHandler := func(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte) (client.RpcResponse, error) {
		log.Info("ping from %s", meta.Tx)
		resp, err := json.Marshal(map[string]string{"reply": "pong"})
		if err != nil {
			return client.RpcResponse{}, err
		}
		return client.RpcResponse{Payload: resp}, nil
	}

	if err := c.Serve(ctx, eventHandler, rpcHandler); err != nil {
		log.Error("serve exited: %v", err)
		os.Exit(1)
	}
}
