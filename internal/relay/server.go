package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"cipherchat/internal/domain"
	"cipherchat/internal/logger"
)

// Server exposes the relay HTTP API over a Store.
type Server struct {
	store Store
	log   *logger.Logger
}

func NewServer(store Store, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{store: store, log: log}
}

// Router builds the route table. Callers mount it directly on an
// http.Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}/messages", s.appendMessage).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{room}/messages", s.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/key", s.getKey).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/key", s.putKey).Methods(http.MethodPut)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) {
	room := domain.ChatRoomID(mux.Vars(r)["room"])

	var msg domain.EncryptedMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg.Ciphertext == "" || msg.IV == "" || len(msg.EncryptedKeys) == 0 {
		http.Error(w, "incomplete envelope", http.StatusBadRequest)
		return
	}

	id, err := s.store.AppendMessage(r.Context(), room, msg)
	if err != nil {
		s.log.Error("append failed", "room", room, "err", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	s.log.Info("envelope stored", "room", room, "id", id, "sender", msg.SenderID)
	writeJSON(w, http.StatusCreated, map[string]domain.MessageID{"id": id})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	room := domain.ChatRoomID(mux.Vars(r)["room"])

	msgs, err := s.store.ListMessages(r.Context(), room)
	if err != nil {
		s.log.Error("list failed", "room", room, "err", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []domain.EncryptedMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(mux.Vars(r)["user"])

	pem, ok, err := s.store.GetPublicKey(r.Context(), user)
	if err != nil {
		s.log.Error("key lookup failed", "user", user, "err", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no published key", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": pem})
}

func (s *Server) putKey(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(mux.Vars(r)["user"])

	var body struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.PublicKey == "" {
		http.Error(w, "publicKey is required", http.StatusBadRequest)
		return
	}

	if err := s.store.SetPublicKey(r.Context(), user, body.PublicKey); err != nil {
		s.log.Error("key publish failed", "user", user, "err", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	s.log.Info("public key published", "user", user)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
