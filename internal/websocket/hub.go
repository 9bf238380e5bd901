package websocket

import (
	"encoding/json"
	"sync"
)

// BillEvent is the change-event contract consumed by connected clients.
// Type is "split-bill-created" or "split-bill-updated"; UpdateType narrows
// updates to "payment-made" or "bill-rejected".
type BillEvent struct {
	Type          string `json:"type"`
	UpdateType    string `json:"update_type,omitempty"`
	SplitBillID   string `json:"split_bill_id"`
	GroupID       string `json:"group_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	SplitBill     any    `json:"split_bill,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// ReminderEvent carries a due reminder to its recipient.
type ReminderEvent struct {
	Type     string `json:"type"`
	Reminder any    `json:"reminder"`
}

// BroadcastReminder delivers one due reminder to the recipient's sessions.
func (h *Hub) BroadcastReminder(userID string, reminder any) {
	payload, _ := json.Marshal(ReminderEvent{Type: "reminder", Reminder: reminder})
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}

// BroadcastBillEvent fans out one event to every connected session of each
// recipient. Slow clients are skipped rather than blocking the ledger path.
func (h *Hub) BroadcastBillEvent(userIDs []string, event BillEvent) {
	payload, _ := json.Marshal(event)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range userIDs {
		for client := range h.clients[userID] {
			select {
			case client.send <- payload:
			default:
			}
		}
	}
}
