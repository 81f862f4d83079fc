// roomtool decrypts and dumps a stored room's game state for debugging.
//
//	DATABASE_URL=... GAME_STATE_KEY=... go run ./cmd/roomtool -room <id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"detective_backend/internal/crypto"
	"detective_backend/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	roomID := flag.String("room", "", "room id to inspect")
	full := flag.Bool("full", false, "dump the full state including the culprit flag")
	flag.Parse()

	if *roomID == "" {
		log.Fatal("-room is required")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	key := os.Getenv("GAME_STATE_KEY")
	if key == "" {
		log.Fatal("GAME_STATE_KEY not set")
	}

	codec, err := crypto.NewBlobCodec(key)
	if err != nil {
		log.Fatalf("bad key: %v", err)
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	var blob, threadID string
	var version, detectiveID int64
	err = db.QueryRow(context.Background(),
		`SELECT state_blob, thread_id, state_version, detective_id FROM rooms WHERE id = $1`,
		*roomID,
	).Scan(&blob, &threadID, &version, &detectiveID)
	if err != nil {
		log.Fatalf("load room: %v", err)
	}

	plain, err := codec.Decrypt(blob)
	if err != nil {
		log.Fatalf("decrypt: %v", err)
	}

	var gs domain.GameState
	if err := json.Unmarshal(plain, &gs); err != nil {
		log.Fatalf("unmarshal: %v", err)
	}

	out := &gs
	if !*full {
		out = gs.ClientView()
	}

	fmt.Printf("room=%s version=%d detective=%d thread=%s\n", *roomID, version, detectiveID, threadID)
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	fmt.Println(string(pretty))
}
