package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type issueRequest struct {
	TemplateID int64 `json:"template_id"`
	UserID     int64 `json:"user_id"`
}

type issueResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	RequestID string `json:"request_id"`
}

type ticketResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	CouponID  int64  `json:"coupon_id"`
	ErrorCode string `json:"error_code"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "coupon service base url")
	templateID := flag.Int64("template", 1, "coupon template id")
	requests := flag.Int("n", 1000, "number of concurrent issuance requests")
	firstUser := flag.Int64("first-user", 1, "first user id; each request uses a distinct user")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	var issued atomic.Int32
	var queued atomic.Int32
	var rejected atomic.Int32
	var failed atomic.Int32
	var requestIDs sync.Map

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()

			body, _ := json.Marshal(issueRequest{TemplateID: *templateID, UserID: userID})
			resp, err := client.Post(*baseURL+"/api/coupons/issue", "application/json", bytes.NewReader(body))
			if err != nil {
				failed.Add(1)
				return
			}
			defer resp.Body.Close()

			var out issueResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				failed.Add(1)
				return
			}

			switch resp.StatusCode {
			case http.StatusOK:
				issued.Add(1)
			case http.StatusAccepted:
				queued.Add(1)
				requestIDs.Store(out.RequestID, struct{}{})
			default:
				rejected.Add(1)
			}
		}(*firstUser + int64(i))
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== LOAD TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", *requests)
	fmt.Printf("Issued (sync):    %d\n", issued.Load())
	fmt.Printf("Queued (async):   %d\n", queued.Load())
	fmt.Printf("Rejected:         %d\n", rejected.Load())
	fmt.Printf("Transport Errors: %d\n", failed.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=======================================")

	// Poll queued tickets until they settle.
	var asyncIssued, asyncRejected, pending int
	deadline := time.Now().Add(30 * time.Second)
	requestIDs.Range(func(key, _ any) bool {
		requestID := key.(string)
		for {
			status, err := fetchTicket(client, *baseURL, requestID)
			if err != nil {
				log.Printf("ticket %s: %v", requestID, err)
				pending++
				return true
			}
			switch status {
			case "issued":
				asyncIssued++
				return true
			case "rejected":
				asyncRejected++
				return true
			}
			if time.Now().After(deadline) {
				pending++
				return true
			}
			time.Sleep(100 * time.Millisecond)
		}
	})

	fmt.Printf("Async Issued:     %d\n", asyncIssued)
	fmt.Printf("Async Rejected:   %d\n", asyncRejected)
	if pending > 0 {
		fmt.Printf("Still Pending:    %d\n", pending)
	}
	fmt.Printf("Total Issued:     %d\n", int(issued.Load())+asyncIssued)
}

func fetchTicket(client *http.Client, baseURL, requestID string) (string, error) {
	resp, err := client.Get(baseURL + "/api/coupons/issue/status?request_id=" + requestID)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var ticket ticketResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return "", err
	}
	return ticket.Status, nil
}
