//go:build ignore
// +build ignore

// Manual concurrency stress test for the circulation API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <item_id> <user1_id> [user2_id ...]
//
// Or use the convenience environment variables:
//
//	ITEM_ID=<uuid>  USER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per user) all attempting to issue the same item
//     simultaneously.
//  2. Users who hit NO_COPY_AVAILABLE fall back to joining the waitlist,
//     mirroring what a client is expected to do.
//  3. Prints how many got a loan vs. a queue position; if loans exceed the
//     item's copy count, the row locking is broken.
//
// Prerequisites:
//   - Server must be running and migrated.
//   - The item and all users must exist.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type attemptResult struct {
	UserID     string
	Outcome    string // "loan" or "queued"
	Position   int
	StatusCode int
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	itemID := os.Getenv("ITEM_ID")
	var userIDs []string
	if v := os.Getenv("USER_IDS"); v != "" {
		userIDs = strings.Split(v, ",")
	}

	args := os.Args[1:]
	if len(args) >= 1 {
		itemID = args[0]
	}
	if len(args) >= 2 {
		userIDs = args[1:]
	}

	if itemID == "" {
		log.Fatal("Usage: ITEM_ID=<uuid> USER_IDS=<u1,u2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <item_id> <user1_id> [user2_id ...]")
	}
	if len(userIDs) == 0 {
		log.Fatal("At least one user ID must be provided via USER_IDS env or positional args")
	}

	fmt.Printf("=== Circulation Concurrency Test ===\n")
	fmt.Printf("Server : %s\n", serverAddr)
	fmt.Printf("Item   : %s\n", itemID)
	fmt.Printf("Users  : %d\n\n", len(userIDs))

	results := make([]attemptResult, len(userIDs))
	var wg sync.WaitGroup

	// Barrier so every request leaves at the same instant.
	start := make(chan struct{})

	for i, uid := range userIDs {
		wg.Add(1)
		go func(idx int, userID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptIssue(serverAddr, itemID, strings.TrimSpace(userID))
		}(i, uid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)

	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var loans, queued, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] user=%-38s err=%v\n", r.UserID, r.Err)
		case r.Outcome == "loan":
			loans++
			fmt.Printf("  [LOAN] user=%-38s status=%d\n", r.UserID, r.StatusCode)
		case r.Outcome == "queued":
			queued++
			fmt.Printf("  [QUEU] user=%-38s status=%d position=%d\n", r.UserID, r.StatusCode, r.Position)
		default:
			failures++
			fmt.Printf("  [FAIL] user=%-38s status=%d unexpected response\n", r.UserID, r.StatusCode)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Loans    : %d\n", loans)
	fmt.Printf("Queued   : %d\n", queued)
	fmt.Printf("Failures : %d\n", failures)
	fmt.Printf("Total    : %d\n\n", len(userIDs))

	fmt.Println("--- Invariant Check ---")
	fmt.Println("Every copy is claimed under SELECT FOR UPDATE, so the number of loans")
	fmt.Println("must not exceed the item's available copies at the start of the test,")
	fmt.Println("and queue positions must come back dense (1..N) with no duplicates.")

	seen := map[int]bool{}
	for _, r := range results {
		if r.Outcome != "queued" {
			continue
		}
		if seen[r.Position] {
			fmt.Printf("\n[FAILED] duplicate queue position %d\n", r.Position)
			os.Exit(1)
		}
		seen[r.Position] = true
	}

	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed — check server logs for details.\n", failures)
		os.Exit(1)
	}
}

// attemptIssue sends POST /items/{id}/issue; on NO_COPY_AVAILABLE it joins the
// waitlist instead.
func attemptIssue(serverAddr, itemID, userID string) attemptResult {
	client := &http.Client{Timeout: 10 * time.Second}
	body := fmt.Sprintf(`{"user_id":%q}`, userID)

	resp, err := client.Post(
		fmt.Sprintf("%s/items/%s/issue", serverAddr, itemID),
		"application/json", bytes.NewBufferString(body))
	if err != nil {
		return attemptResult{UserID: userID, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusCreated {
		return attemptResult{UserID: userID, Outcome: "loan", StatusCode: resp.StatusCode}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return attemptResult{UserID: userID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	if code, _ := parsed["code"].(string); code != "NO_COPY_AVAILABLE" {
		return attemptResult{UserID: userID, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", raw)}
	}

	resp2, err := client.Post(
		fmt.Sprintf("%s/items/%s/queue", serverAddr, itemID),
		"application/json", bytes.NewBufferString(body))
	if err != nil {
		return attemptResult{UserID: userID, Err: err}
	}
	defer resp2.Body.Close()
	raw2, _ := io.ReadAll(resp2.Body)

	if resp2.StatusCode != http.StatusCreated {
		return attemptResult{UserID: userID, StatusCode: resp2.StatusCode, Err: fmt.Errorf("queue join failed: %s", raw2)}
	}

	var entry struct {
		Position int `json:"position"`
	}
	_ = json.Unmarshal(raw2, &entry)
	return attemptResult{UserID: userID, Outcome: "queued", Position: entry.Position, StatusCode: resp2.StatusCode}
}
