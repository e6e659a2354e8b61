package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/config"
	"github.com/policydesk/api/internal/handler"
	"github.com/policydesk/api/internal/identity"
	"github.com/policydesk/api/internal/middleware"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/service"
	ws "github.com/policydesk/api/internal/websocket"
	"github.com/policydesk/api/internal/worker"
)

const testUser = "test-user-123"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	relay *fakeRelay
}

// fakeRelay is an in-memory relay. A job completes on its second status
// read; targets prefixed FAIL fail instead.
type fakeRelay struct {
	mu       sync.Mutex
	polls    map[string]int
	active   int
	maxSeen  int
	register map[string]int
}

func (r *fakeRelay) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path := strings.TrimPrefix(req.URL.Path, "/api/policy-tables")
		w.Header().Set("Content-Type", "application/json")
		r.mu.Lock()
		defer r.mu.Unlock()

		switch {
		case req.Method == http.MethodPost && path == "/generate":
			var body client.GenerateRequest
			_ = json.NewDecoder(req.Body).Decode(&body)
			r.active++
			if r.active > r.maxSeen {
				r.maxSeen = r.active
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"jobId": body.TargetID + "-job", "status": "queued", "queuePosition": 1})

		case req.Method == http.MethodGet && strings.HasSuffix(path, "/status"):
			jobID := strings.TrimSuffix(strings.TrimPrefix(path, "/generate/"), "/status")
			r.polls[jobID]++
			switch {
			case r.polls[jobID] < 2:
				w.Write([]byte(`{"status":"processing","progress":50}`))
			case strings.HasPrefix(jobID, "FAIL"):
				r.active--
				w.Write([]byte(`{"status":"error","error":"renderer timeout","failureReason":"timeout"}`))
			default:
				r.active--
				json.NewEncoder(w).Encode(map[string]interface{}{
					"status":   "success",
					"progress": 100,
					"result":   map[string]string{"id": "art-" + jobID, "imageUrl": "https://cdn.example.com/" + jobID + ".png"},
				})
			}

		case req.Method == http.MethodPost && strings.HasSuffix(path, "/register"):
			id := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/register")
			r.register[id]++
			json.NewEncoder(w).Encode(map[string]bool{"alreadyRegistered": r.register[id] > 1})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// setupApp creates a Fiber app wired like main.go against an in-memory relay.
// Batch tasks go through asynq, so Redis must be running.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost; must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	redisOpt := asynq.RedisClientOpt{Addr: "localhost:6379", DB: 15}
	asynqClient := asynq.NewClient(redisOpt)
	t.Cleanup(func() { asynqClient.Close() })

	fake := &fakeRelay{polls: map[string]int{}, register: map[string]int{}}
	relaySrv := httptest.NewServer(fake.handler())
	t.Cleanup(relaySrv.Close)

	validate := service.NewValidator()
	relay := client.NewRelayClient(&config.RelayConfig{BaseURL: relaySrv.URL + "/api/policy-tables", Timeout: 5})
	gate := service.NewRelayGate("relay", 5*time.Millisecond)
	submitter := service.NewSubmitter(relay, validate)
	poller := service.NewPoller(relay, config.PollConfig{FastInterval: 5 * time.Millisecond, SlowInterval: 20 * time.Millisecond, StallThreshold: 3})
	orchestrator := service.NewOrchestrator(submitter, poller, gate)
	registrar := service.NewRegistrar(relay, nil, 2)
	prefs := service.NewPreferenceService(redisClient)

	// one queue per test so parallel runs never steal each other's tasks
	queue := service.InstanceQueue("e2e-" + uuid.New().String())
	dispatcher := service.NewAsynqDispatcher(asynqClient, queue, time.Minute)

	var batches *service.BatchService
	hub := ws.NewHub(func(batchID string) (model.BatchSnapshot, bool) {
		snap, err := batches.Snapshot(batchID, identity.Identity{})
		return snap, err == nil
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	t.Cleanup(stopHub)
	go hub.Run(hubCtx)

	batches = service.NewBatchService(orchestrator, registrar, dispatcher, hub, prefs, validate)
	t.Cleanup(batches.Shutdown)

	// Worker server
	workerSrv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{queue: 1},
		LogLevel:    asynq.WarnLevel,
	})
	mux := asynq.NewServeMux()
	worker.NewBatchWorker(batches).Register(mux)
	if err := workerSrv.Start(mux); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(workerSrv.Shutdown)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New(fiber.Config{ErrorHandler: handler.ErrorHandler})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "relayBusy": gate.Busy()})
	})

	// Use very high rate limits so tests don't get blocked
	handler.Routes{
		Jobs:        handler.NewJobHandler(submitter, poller, registrar, validate),
		Batches:     handler.NewBatchHandler(batches, hub),
		Preferences: handler.NewPreferenceHandler(prefs, validate),
		Policy:      handler.NewPolicyHandler(),
		Identity:    middleware.GatewayIdentity(true),
		SubmitLimit: rateLimiter.SubmitLimit(10000),
		BatchLimit:  rateLimiter.BatchLimit(10000),
	}.Mount(app)

	return &testApp{app: app, relay: fake}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doUserRequest performs a request carrying gateway identity headers.
func doUserRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"X-User-Id":    testUser,
		"X-User-Email": "test@example.com",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// waitFinished polls the batch view until every item is terminal.
func waitFinished(t *testing.T, app *fiber.App, batchID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp := doUserRequest(t, app, http.MethodGet, "/api/batches/"+batchID, "")
		body := parseJSON(t, resp)
		if body["finished"] == true {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("batch %s did not finish", batchID)
	return nil
}
