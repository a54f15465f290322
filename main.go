package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"asset-forge-server/modules/common/config"
	"asset-forge-server/modules/common/database"
	redisClient "asset-forge-server/modules/common/redis"
	"asset-forge-server/modules/common/storage"
	"asset-forge-server/modules/pipeline"
	"asset-forge-server/modules/submodule/imagen"
	"asset-forge-server/modules/submodule/meshy"
	"asset-forge-server/modules/submodule/skybox"
	"asset-forge-server/modules/worker"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		// 프로덕션에서는 특정 도메인만 허용하도록 수정
		return true
	},
}

// 연결된 클라이언트 정보
type Client struct {
	conn   *websocket.Conn
	userId string
	send   chan []byte
}

// ProgressHub - 파이프라인 진행 이벤트 브로드캐스트 허브
type ProgressHub struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

var progressHub = &ProgressHub{
	clients: make(map[string]*Client),
}

// addClient - 클라이언트 등록
func (h *ProgressHub) addClient(client *Client) {
	h.mutex.Lock()
	h.clients[client.userId] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	log.Printf("👤 Client %s connected (Clients: %d)", client.userId, clientCount)
}

// removeClient - 클라이언트 제거
func (h *ProgressHub) removeClient(userId string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if client, exists := h.clients[userId]; exists {
		close(client.send)
		delete(h.clients, userId)
		log.Printf("👋 Client %s disconnected (Remaining: %d)", userId, len(h.clients))
	}
}

// PublishProgress - 모든 클라이언트에게 진행 이벤트 브로드캐스트
// pipeline.EventSink 구현
func (h *ProgressHub) PublishProgress(ev pipeline.ProgressEvent) {
	messageBytes, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling progress event: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for userId, client := range h.clients {
		select {
		case client.send <- messageBytes:
		default:
			// 버퍼가 가득 찬 클라이언트는 끊음
			close(client.send)
			delete(h.clients, userId)
		}
	}
}

// WebSocket 핸들러
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	userId := r.URL.Query().Get("user")
	if userId == "" {
		log.Printf("Missing user parameter")
		conn.Close()
		return
	}

	client := &Client{
		conn:   conn,
		userId: userId,
		send:   make(chan []byte, 256),
	}

	log.Printf("🔍 New WebSocket connection - User: %s", userId)

	progressHub.addClient(client)

	go client.writePump()
	go client.readPump()
}

// readPump - 연결 유지 전용 (클라이언트 → 서버 메시지는 버림)
func (c *Client) readPump() {
	defer func() {
		progressHub.removeClient(c.userId)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump - 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}

	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "asset-forge-server",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	projectID := os.Getenv("PROJECT_ID")
	if projectID == "" {
		log.Fatal("❌ PROJECT_ID is required")
	}

	// Redis 연결
	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
	}
	log.Println("✅ Redis connected successfully")

	// Database 클라이언트 초기화
	dbClient := database.NewClient()
	if dbClient == nil {
		log.Fatal("❌ Failed to initialize Database client")
	}

	// 외부 서비스 초기화
	meshyService := meshy.NewService()
	skyboxService := skybox.NewService()
	imagenService := imagen.NewService()
	storageClient := storage.NewClient()

	// 파이프라인 Manager 구성
	manager := pipeline.NewManager(pipeline.ManagerConfig{
		ProjectID:    projectID,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		Records:      dbClient,
		Models:       meshyService,
		Images:       imagenService,
		Skyboxes:     skyboxService,
		Artifacts:    pipeline.NewVersionArtifactStore(storageClient, dbClient),
		Events:       progressHub,
	})

	ctx := context.Background()

	// Plan 로드
	assets, err := dbClient.FetchPlanAssets(ctx, projectID)
	if err != nil {
		log.Fatalf("❌ Failed to load plan: %v", err)
	}
	manager.LoadPlan(assets)

	// 영속 레코드에서 상태 복원 + 진행 중이던 폴링 재개
	if err := manager.HydrateFromStore(ctx, dbClient.FetchAssetRecords); err != nil {
		log.Printf("⚠️ Hydration failed, starting with empty state: %v", err)
	}

	// 승인된 2D 버전 복원
	if err := manager.HydrateVersions(ctx, dbClient.FetchVersionRecords, storageClient.DownloadVersionImage); err != nil {
		log.Printf("⚠️ Version hydration failed: %v", err)
	}

	// 배치 오케스트레이터 (취소 플래그는 Redis에서 확인)
	orchestrator := pipeline.NewOrchestrator(manager, func(ctx context.Context, jobID string) bool {
		return redisClient.IsJobCancelled(rdb, jobID)
	})

	// Redis Queue Worker 시작 (백그라운드)
	go worker.StartWorker(rdb, dbClient, orchestrator)

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", handleWebSocket)

	pipeline.NewHandler(manager, orchestrator).RegisterRoutes(r)

	if enqueueHandler := worker.NewEnqueueHandler(rdb, dbClient, projectID); enqueueHandler != nil {
		enqueueHandler.RegisterRoutes(r)
	}
	if cancelHandler := worker.NewCancelHandler(rdb, dbClient); cancelHandler != nil {
		cancelHandler.RegisterRoutes(r)
	}

	// 포트 설정 (Render.com은 PORT 환경변수 사용)
	port := cfg.Port

	log.Printf("🚀 Asset Forge Server starting on port %s", port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 종료 시그널 처리 - 떠 있는 폴링 정리 후 종료
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("🛑 Shutting down...")
		manager.Poller().CancelAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}
