package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
)

const DefaultIndex = "auth_audit"

func NewClient(url, user, password string) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  password,
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, err
	}

	res, err := client.Info()
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	return client, nil
}

type Entry struct {
	Event    string    `json:"event"`
	Email    string    `json:"email,omitempty"`
	UserID   uint      `json:"user_id,omitempty"`
	RemoteIP string    `json:"remote_ip,omitempty"`
	Outcome  string    `json:"outcome"`
	At       time.Time `json:"at"`
}

// Recorder indexes auth decisions into Elasticsearch, best effort. A nil
// Recorder is a valid no-op, so wiring stays optional.
type Recorder struct {
	ES    *elasticsearch.Client
	Index string
	Log   *slog.Logger
}

func NewRecorder(es *elasticsearch.Client, log *slog.Logger) *Recorder {
	return &Recorder{ES: es, Index: DefaultIndex, Log: log}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.ES == nil {
		return
	}
	e.At = time.Now().UTC()

	body, err := json.Marshal(e)
	if err != nil {
		return
	}

	res, err := r.ES.Index(r.Index, bytes.NewReader(body), r.ES.Index.WithContext(ctx))
	if err != nil {
		r.Log.Warn("audit_index_failed", "event", e.Event, "error", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		r.Log.Warn("audit_index_failed", "event", e.Event, "status", res.Status())
	}
}
