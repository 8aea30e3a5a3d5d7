package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/battle-arena/arena-backend/internal/events"
)

// PresenceTracker 접속/이탈을 게임 서버에 알린다
type PresenceTracker interface {
	SetPlayerConnected(matchID, playerID string, connected bool) error
}

// Hub 매치별 WebSocket 룸 관리 및 브로드캐스트.
// events.Emitter를 구현해 게임 엔진의 아웃바운드 채널 역할을 한다.
type Hub struct {
	// 매치별 연결 저장 (matchID -> playerID -> *Client)
	rooms map[string]map[string]*Client
	mu    sync.RWMutex

	// 브로드캐스트 채널
	broadcast chan *Message

	// 등록/해제 채널
	register   chan *Client
	unregister chan *Client

	presence PresenceTracker
	logger   *zap.Logger
}

// Message 매치 룸으로 나가는 메시지
type Message struct {
	MatchID string      `json:"-"` // 수신 룸
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewHub Hub 생성. presence는 nil일 수 있다.
func NewHub(presence PresenceTracker, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		presence:   presence,
		logger:     logger,
	}
}

// Run Hub 실행
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Emit events.Emitter 구현: 엔진 이벤트를 해당 매치 룸으로 중계
func (h *Hub) Emit(ev events.Event) {
	h.broadcast <- &Message{
		MatchID: ev.MatchID,
		Type:    string(ev.Type),
		Payload: ev.Payload,
	}
}

// registerClient 클라이언트 등록
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	room, ok := h.rooms[client.matchID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[client.matchID] = room
	}

	// 같은 플레이어의 기존 연결이 있으면 닫기
	if oldClient, exists := room[client.playerID]; exists {
		close(oldClient.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("matchId", client.matchID),
			zap.String("playerId", client.playerID))
	}

	room[client.playerID] = client
	total := len(room)
	h.mu.Unlock()

	h.notifyPresence(client, true)

	h.logger.Info("WebSocket client registered",
		zap.String("matchId", client.matchID),
		zap.String("playerId", client.playerID),
		zap.Int("roomClients", total))
}

// unregisterClient 클라이언트 해제
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	room, ok := h.rooms[client.matchID]
	if !ok || room[client.playerID] != client {
		h.mu.Unlock()
		return
	}

	delete(room, client.playerID)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.matchID)
	}
	h.mu.Unlock()

	h.notifyPresence(client, false)

	h.logger.Info("WebSocket client unregistered",
		zap.String("matchId", client.matchID),
		zap.String("playerId", client.playerID))
}

func (h *Hub) notifyPresence(client *Client, connected bool) {
	if h.presence == nil {
		return
	}
	if err := h.presence.SetPlayerConnected(client.matchID, client.playerID, connected); err != nil {
		// 매치 종료 후 끊긴 연결은 룸이 이미 없다
		h.logger.Debug("Presence update skipped",
			zap.String("matchId", client.matchID),
			zap.String("playerId", client.playerID),
			zap.Error(err))
	}
}

// broadcastMessage 매치 룸 전체에 메시지 전송
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[message.MatchID]
	if !ok {
		return
	}

	for _, client := range room {
		select {
		case client.send <- message:
		default:
			// 채널이 가득 찬 경우 연결 해제
			h.logger.Warn("Client send channel full, unregistering",
				zap.String("matchId", client.matchID),
				zap.String("playerId", client.playerID))
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// SendToMatch 매치 룸으로 메시지 전송
func (h *Hub) SendToMatch(matchID, msgType string, payload interface{}) {
	h.broadcast <- &Message{
		MatchID: matchID,
		Type:    msgType,
		Payload: payload,
	}
}

// RoomSize 매치 룸의 접속 클라이언트 수
func (h *Hub) RoomSize(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}
