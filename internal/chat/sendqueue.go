package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
)

// sendJob is one queued outgoing message.
type sendJob struct {
	localID         domain.MessageID
	text            string
	clientCreatedMs int64
}

// sendQueue serializes outgoing sends for one session: a job runs to
// completion (success or terminal failure) before the next starts, so
// network I/O never interleaves per-message key material.
type sendQueue struct {
	session *Session
	jobs    chan sendJob
}

func newSendQueue(s *Session) *sendQueue {
	return &sendQueue{session: s, jobs: make(chan sendJob, 128)}
}

func (q *sendQueue) enqueue(job sendJob) {
	q.jobs <- job
}

func (q *sendQueue) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case job := <-q.jobs:
			q.session.processSend(job)
		case <-ctx.Done():
			return
		}
	}
}

// processSend executes one job. A failure of any step marks the entry
// Failed and the queue continues; there is no automatic retry.
func (s *Session) processSend(job sendJob) {
	if err := s.transmit(job); err != nil {
		s.log.Warn("send failed", "localId", job.localID, "err", err)
		s.setStatus(job.localID, domain.StatusFailed)
	}
	s.notify()
}

// transmit builds and sends the envelope: fresh AES key, encrypt, wrap for
// both parties, append to the remote store. Nothing partial is ever
// transmitted or persisted; on error the job simply ends.
func (s *Session) transmit(job sendJob) error {
	ctx := s.ctx

	peerPEM, ok, err := s.remote.GetPublicKey(ctx, s.peer)
	if err != nil {
		return fmt.Errorf("%w: recipient key lookup: %v", domain.ErrSendFailed, err)
	}
	if !ok {
		return domain.ErrNoRecipientKey
	}

	ownPEM, ok, err := s.remote.GetPublicKey(ctx, s.self)
	if err != nil {
		return fmt.Errorf("%w: own key lookup: %v", domain.ErrSendFailed, err)
	}
	if !ok {
		// First send from this device: make sure our pair exists. Blocks
		// this job only; the queue behind it waits its turn.
		if err := s.keys.EnsureKeys(ctx, s.self); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
		}
		ownPEM, ok, err = s.remote.GetPublicKey(ctx, s.self)
		if err != nil || !ok {
			return fmt.Errorf("%w: own key missing after generation", domain.ErrSendFailed)
		}
	}

	aesKey, err := crypto.GenerateAESKey()
	if err != nil {
		return err
	}
	defer crypto.Wipe(aesKey)

	ciphertext, iv, err := crypto.AESEncrypt(job.text, aesKey)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}
	keyB64 := base64.StdEncoding.EncodeToString(aesKey)

	wrappedSelf, err := crypto.WrapKey(keyB64, ownPEM)
	if err != nil {
		return fmt.Errorf("%w: wrapping for self: %v", domain.ErrSendFailed, err)
	}
	wrappedPeer, err := crypto.WrapKey(keyB64, peerPEM)
	if err != nil {
		return fmt.Errorf("%w: wrapping for %s: %v", domain.ErrSendFailed, s.peer, err)
	}

	msg := domain.EncryptedMessage{
		SenderID:   s.self,
		Ciphertext: ciphertext,
		IV:         iv,
		EncryptedKeys: map[domain.UserID]string{
			s.self: wrappedSelf,
			s.peer: wrappedPeer,
		},
		Algorithm:     domain.AlgorithmAESCBC256,
		ClientCreated: job.clientCreatedMs,
	}

	serverID, err := s.remote.AppendMessage(ctx, s.room, msg)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}

	s.mu.Lock()
	if m, ok := s.messages[job.localID]; ok && m.Status == domain.StatusPending {
		m.Status = domain.StatusSent
	}
	s.keyMemo[serverID] = keyB64
	s.mu.Unlock()

	if err := s.cache.Save(s.room, serverID, job.text, ciphertext, iv, 0, s.self); err != nil {
		s.log.Warn("cache save failed", "id", serverID, "err", err)
	}
	return nil
}
