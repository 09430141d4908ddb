// Command example wires up a dbsession.Handler against a local SQLite file
// and drives it through one open/read/write/close cycle, the way a web
// framework's session middleware would around a single request.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Morditux/dbsession"
)

func main() {
	ctx := context.Background()

	h, err := dbsession.NewHandler(dbsession.DriverSQLite, dbsession.Config{
		DSN:         "sessions.db",
		LockMode:    dbsession.LockModePtr(dbsession.LockTransactional),
		MaxLifetime: func() int { return 3600 },
	})
	if err != nil {
		log.Fatalf("failed to create handler: %v", err)
	}

	if err := h.CreateTable(ctx); err != nil {
		log.Fatalf("failed to create sessions table: %v", err)
	}

	if err := h.Open(ctx, "sessions.db", "PHPSESSID"); err != nil {
		log.Fatalf("failed to open handler: %v", err)
	}
	defer func() {
		if err := h.Close(ctx); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	const sessionID = "4f6c1e2a9b8d4c7fa1e0b3d5c6f7a809"

	data, err := h.Read(ctx, sessionID)
	if err != nil {
		log.Fatalf("failed to read session: %v", err)
	}
	if h.IsSessionExpired() || len(data) == 0 {
		fmt.Println("starting a new session")
	} else {
		fmt.Printf("resumed session with %d bytes of payload\n", len(data))
	}

	if err := h.Write(ctx, sessionID, []byte("visits=1")); err != nil {
		log.Fatalf("failed to write session: %v", err)
	}

	if _, err := h.Gc(ctx, 3600); err != nil {
		log.Fatalf("failed to gc: %v", err)
	}

	fmt.Println("session saved at", time.Now().Format(time.RFC3339))
}
