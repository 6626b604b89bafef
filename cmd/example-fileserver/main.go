// Command example-fileserver is a thin consumer of the client runtime
// demonstrating large-attachment streaming: it answers "Upload" RPC
// requests by writing the sole attachment to storage-path, and "Download"
// requests by sending a stored file back as the response attachment
// (spec.md's large-attachment streaming scenario, grounded on the
// original source's distribution/spup/src/main.rs). The attachment
// travels as a sequence of frames, but both directions hold the whole file
// in memory: uploads are assembled by full-message mode and downloads are
// read with os.ReadFile before being sent.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/skytfs/streammesh/internal/client"
	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/pkg/logger"
)

func main() {
	host := flag.String("host", "127.0.0.1:7700", "broker address")
	addr := flag.String("addr", "File", "this participant's address")
	accessKey := flag.String("access-key", "", "broker access key")
	storagePath := flag.String("storage-path", "./storage", "directory files are uploaded to and downloaded from")
	flag.Parse()

	log := logger.New(*addr)

	if err := os.MkdirAll(*storagePath, 0o755); err != nil {
		log.Fatal("failed to create storage path: %v", err)
	}

	c, err := client.Dial(client.Config{Host: *host, Addr: *addr, AccessKey: *accessKey}, log)
	if err != nil {
		log.Fatal("dial failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rpcHandler := func(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte) (client.RpcResponse, error) {
		switch meta.Key {
		case "Upload":
			return handleUpload(*storagePath, meta, attachments)
		case "Download":
			return handleDownload(*storagePath, payload)
		default:
			return client.RpcResponse{}, fmt.Errorf("unknown key %q", meta.Key)
		}
	}

	if err := c.Serve(ctx, nil, rpcHandler); err != nil {
		log.Error("serve exited: %v", err)
		os.Exit(1)
	}
}

func handleUpload(storagePath string, meta *message.Meta, attachments [][]byte) (client.RpcResponse, error) {
	if len(meta.Attachments) == 0 || len(attachments) == 0 {
		return client.RpcResponse{}, fmt.Errorf("upload request carries no attachment")
	}
	name := meta.Attachments[0].Name
	path := filepath.Join(storagePath, filepath.Base(name))
	if err := os.WriteFile(path, attachments[0], 0o644); err != nil {
		return client.RpcResponse{}, err
	}
	payload, err := json.Marshal(map[string]string{"stored": name})
	if err != nil {
		return client.RpcResponse{}, err
	}
	return client.RpcResponse{Payload: payload}, nil
}

func handleDownload(storagePath string, payload []byte) (client.RpcResponse, error) {
	var req struct {
		FileName string `json:"file_name"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return client.RpcResponse{}, err
	}
	path := filepath.Join(storagePath, filepath.Base(req.FileName))
	data, err := os.ReadFile(path)
	if err != nil {
		return client.RpcResponse{}, err
	}
	return client.RpcResponse{
		Payload:     []byte("{}"),
		Attachments: []client.Attachment{{Name: req.FileName, Data: data}},
	}, nil
}
