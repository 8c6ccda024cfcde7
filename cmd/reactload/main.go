// Package main hammers one post's reaction endpoints while websocket
// listeners count the realtime events that come back.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the run's results.
type Metrics struct {
	ListenersConnected int64
	ListenersFailed    int64
	Toggles            int64
	EmojiSets          int64
	RequestErrors      int64
	EventsReceived     int64
}

var (
	metrics    Metrics
	httpClient = &http.Client{Timeout: 5 * time.Second}
	emojiKinds = []string{"like", "love", "laugh", "wow", "sad", "angry"}
)

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	email := flag.String("email", "root@quill.local", "Account email")
	password := flag.String("password", "", "Account password")
	postID := flag.Uint("post", 1, "Post to react to")
	listeners := flag.Int("listeners", 8, "Websocket clients counting events (the server allows 8 per account)")
	reactors := flag.Int("reactors", 10, "Concurrent reaction workers")
	rounds := flag.Int("rounds", 50, "Like toggles per worker; even counts leave the like state unchanged")
	flag.Parse()

	log.Printf("🚀 Reaction load test against %s, post %d", *host, *postID)
	log.Printf("Listeners: %d, reactors: %d, rounds: %d", *listeners, *reactors, *rounds)

	token, err := login(*host, *email, *password)
	if err != nil {
		log.Fatalf("❌ Login failed: %v", err)
	}

	before, err := likesCount(*host, *postID)
	if err != nil {
		log.Fatalf("❌ Could not read post %d: %v", *postID, err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	stop := make(chan struct{})

	var listenWG sync.WaitGroup
	for i := 0; i < *listeners; i++ {
		listenWG.Add(1)
		go listen(*host, token, stop, &listenWG)
		time.Sleep(20 * time.Millisecond)
	}

	var reactWG sync.WaitGroup
	start := time.Now()
	for i := 0; i < *reactors; i++ {
		reactWG.Add(1)
		go func(worker int) {
			defer reactWG.Done()
			react(*host, token, *postID, worker, *rounds)
		}(i)
	}

	done := make(chan struct{})
	go func() { reactWG.Wait(); close(done) }()
	select {
	case <-done:
		log.Printf("⏱️  Reactions finished in %v", time.Since(start))
	case <-interrupt:
		log.Println("🛑 Interrupted by user")
	}

	// Give in-flight events a moment to arrive.
	time.Sleep(time.Second)
	close(stop)
	listenWG.Wait()

	after, err := likesCount(*host, *postID)
	if err != nil {
		log.Printf("⚠️  Could not re-read post: %v", err)
	}
	printMetrics(before, after, *reactors**rounds)
}

func postJSON(u, token string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(http.MethodPost, u, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return httpClient.Do(req)
}

func login(host, email, password string) (string, error) {
	resp, err := postJSON(fmt.Sprintf("http://%s/api/auth/login", host), "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func getTicket(host, token string) (string, error) {
	resp, err := postJSON(fmt.Sprintf("http://%s/api/ws/ticket", host), token, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ticket issuance failed with status %d", resp.StatusCode)
	}
	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Ticket, nil
}

func likesCount(host string, postID uint) (int, error) {
	resp, err := httpClient.Get(fmt.Sprintf("http://%s/api/posts/%d", host, postID))
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	var post struct {
		LikesCount int `json:"likes_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		return 0, err
	}
	return post.LikesCount, nil
}

func listen(host, token string, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticket, err := getTicket(host, token)
	if err != nil {
		atomic.AddInt64(&metrics.ListenersFailed, 1)
		return
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws", RawQuery: url.Values{"ticket": {ticket}}.Encode()}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		atomic.AddInt64(&metrics.ListenersFailed, 1)
		return
	}
	defer func() { _ = c.Close() }()
	atomic.AddInt64(&metrics.ListenersConnected, 1)

	go func() {
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var ev struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(msg, &ev) == nil && ev.Type == "post_reaction_updated" {
				atomic.AddInt64(&metrics.EventsReceived, 1)
			}
		}
	}()

	<-stop
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func react(host, token string, postID uint, worker, rounds int) {
	likeURL := fmt.Sprintf("http://%s/post/%d/like/", host, postID)
	emojiURL := fmt.Sprintf("http://%s/post/%d/emoji/", host, postID)

	for i := 0; i < rounds; i++ {
		if err := expectSuccess(postJSON(likeURL, token, nil)); err != nil {
			atomic.AddInt64(&metrics.RequestErrors, 1)
			continue
		}
		atomic.AddInt64(&metrics.Toggles, 1)

		if i%5 == 0 {
			kind := emojiKinds[(worker+i)%len(emojiKinds)]
			if err := expectSuccess(postJSON(emojiURL, token, map[string]string{"emoji_type": kind})); err != nil {
				atomic.AddInt64(&metrics.RequestErrors, 1)
				continue
			}
			atomic.AddInt64(&metrics.EmojiSets, 1)
		}
	}
}

func expectSuccess(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK || !body.Success {
		return errors.New(body.Error)
	}
	return nil
}

func printMetrics(before, after, planned int) {
	toggles := atomic.LoadInt64(&metrics.Toggles)

	log.Println("\n📊 Test Results")
	log.Println("===============")
	log.Printf("Listeners Connected: %d", atomic.LoadInt64(&metrics.ListenersConnected))
	log.Printf("Listeners Failed: %d", atomic.LoadInt64(&metrics.ListenersFailed))
	log.Printf("Like Toggles: %d of %d", toggles, planned)
	log.Printf("Emoji Sets: %d", atomic.LoadInt64(&metrics.EmojiSets))
	log.Printf("Request Errors: %d", atomic.LoadInt64(&metrics.RequestErrors))
	log.Printf("Events Received: %d", atomic.LoadInt64(&metrics.EventsReceived))
	log.Printf("likes_count before: %d, after: %d", before, after)

	// One account toggles, so completed toggles decide the like state.
	diff := after - before
	if diff < 0 {
		diff = -diff
	}
	if want := int(toggles % 2); diff != want {
		log.Printf("❌ likes_count drifted: expected a change of %d, got %d", want, after-before)
		os.Exit(1)
	}
	log.Println("✅ likes_count consistent")
}
