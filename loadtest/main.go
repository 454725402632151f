package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

var (
	baseURL   = pflag.String("base-url", "http://localhost:8080", "server base URL")
	pairCount = pflag.Int("pairs", 250, "number of user pairs") // ⚠️ Start small. Database might choke on 1000 immediately.
	msgCount  = pflag.Int("messages", 20, "messages per user")
	viaHTTP   = pflag.Bool("http", false, "send through POST /api/messages instead of the websocket")
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var (
	sent     atomic.Int64
	received atomic.Int64
	failed   atomic.Int64
)

func main() {
	pflag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", *pairCount*2, *msgCount)
	start := time.Now()
	var wg sync.WaitGroup

	// We will create pairs: User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d received=%d failed=%d",
		time.Since(start).Round(time.Millisecond), sent.Load(), received.Load(), failed.Load())
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	a, err := authenticate(userA, pass)
	if err != nil {
		log.Printf("❌ Auth Failed [%s]: %v", userA, err)
		return
	}
	b, err := authenticate(userB, pass)
	if err != nil {
		log.Printf("❌ Auth Failed [%s]: %v", userB, err)
		return
	}

	connA, err := connect(a)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", userA, err)
		return
	}
	defer connA.Close()
	connB, err := connect(b)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", userB, err)
		return
	}
	defer connB.Close()

	var wsWg sync.WaitGroup
	wsWg.Add(4)
	go drain(&wsWg, connA, *msgCount)
	go drain(&wsWg, connB, *msgCount)
	go spamChat(&wsWg, connA, a, b.ID)
	go spamChat(&wsWg, connB, b, a.ID)
	wsWg.Wait()
}

// authenticate registers (ignores error if exists) and logs in.
func authenticate(username, password string) (*AuthResponse, error) {
	if resp, err := postJSON("/register", "", map[string]string{"username": username, "password": password}); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/login", "", map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login status %d", resp.StatusCode)
	}

	var data AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// connect dials the websocket and binds it with setup.
func connect(auth *AuthResponse) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws?token=" + url.QueryEscape(auth.Token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}
	setup, _ := json.Marshal(map[string]string{"identity": auth.ID})
	if err := conn.WriteJSON(event{Type: "setup", Data: setup}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func spamChat(wg *sync.WaitGroup, conn *websocket.Conn, from *AuthResponse, to string) {
	defer wg.Done()

	for i := 0; i < *msgCount; i++ {
		content := fmt.Sprintf("LoadTest Msg %d from %s", i, from.Username)
		var err error
		if *viaHTTP {
			var resp *http.Response
			resp, err = postJSON("/api/messages", from.Token, map[string]string{"to": to, "content": content})
			if err == nil {
				if resp.StatusCode != http.StatusCreated {
					err = fmt.Errorf("status %d", resp.StatusCode)
				}
				resp.Body.Close()
			}
		} else {
			data, _ := json.Marshal(map[string]string{"to": to, "message": content})
			err = conn.WriteJSON(event{Type: "private_message", Data: data})
		}
		if err != nil {
			failed.Add(1)
			log.Printf("❌ Send Fail [%s]: %v", from.Username, err)
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", from.Username, *msgCount)
}

// drain counts incoming private messages until want arrive or the peer goes quiet.
func drain(wg *sync.WaitGroup, conn *websocket.Conn, want int) {
	defer wg.Done()

	got := 0
	for got < want {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		switch ev.Type {
		case "private_message":
			got++
			received.Add(1)
		case "error":
			failed.Add(1)
			log.Printf("❌ Server error event: %s", ev.Data)
		}
	}
}

func postJSON(endpoint, token string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	req, err := http.NewRequest(http.MethodPost, *baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
