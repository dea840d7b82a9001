// Package audit indexes authentication decisions into elasticsearch so
// operators can search who authenticated, how, and through which
// backend. Like the event producer it is optional and best-effort.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/quantflow/backend/internal/logging"
)

const index = "auth_audit"

type Entry struct {
	UserID  string    `json:"user_id,omitempty"`
	Email   string    `json:"email,omitempty"`
	Action  string    `json:"action"`
	Outcome string    `json:"outcome"`
	Source  string    `json:"source,omitempty"`
	At      time.Time `json:"at"`
}

type Recorder struct {
	es *elasticsearch.Client
}

func NewRecorder(url, user, password string) (*Recorder, error) {
	if url == "" {
		return nil, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, err
	}
	return &Recorder{es: client}, nil
}

// Record indexes one entry. Nil-safe; indexing faults are logged and
// dropped so audit can never break authentication.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(e); err != nil {
		logging.FromContext(ctx).Error("audit_marshal_failed", "action", e.Action, "error", err)
		return
	}

	res, err := r.es.Index(
		index,
		&buf,
		r.es.Index.WithContext(ctx),
	)
	if err != nil {
		logging.FromContext(ctx).Warn("audit_index_failed", "action", e.Action, "error", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		logging.FromContext(ctx).Warn("audit_index_failed", "action", e.Action, "status", res.Status())
	}
}
