package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hisabi-bot/hisabi/pkg/api"
)

type fakeHandler struct {
	messages []api.InboundMessage
	err      error
}

func (h *fakeHandler) HandleMessage(ctx context.Context, msg api.InboundMessage) error {
	h.messages = append(h.messages, msg)
	return h.err
}

type fakeMedia struct{}

func (fakeMedia) DownloadMedia(ctx context.Context, mediaID string) (*api.MediaPayload, error) {
	if mediaID == "" {
		return nil, errors.New("empty media id")
	}
	return &api.MediaPayload{MimeType: "image/jpeg", Data: []byte("bytes-of-" + mediaID)}, nil
}

func newTestServer(handler *fakeHandler) *Server {
	return New(Config{Addr: ":0", VerifyToken: "secret"}, handler, fakeMedia{}, nil)
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestVerifyHandshake(t *testing.T) {
	s := newTestServer(&fakeHandler{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345", nil)
	rec := do(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("body = %q, want the challenge echoed back", rec.Body.String())
	}
}

func TestVerifyRejectsBadToken(t *testing.T) {
	s := newTestServer(&fakeHandler{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := do(s, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

const textPayload = `{
	"entry": [{
		"changes": [{
			"value": {
				"messages": [{
					"id": "wamid.1",
					"from": "15550001111",
					"type": "text",
					"text": {"body": "Coffee 120"}
				}]
			}
		}]
	}]
}`

func postNotification(s *Server, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return do(s, req)
}

func TestReceiveTextMessage(t *testing.T) {
	h := &fakeHandler{}
	s := newTestServer(h)

	rec := postNotification(s, textPayload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(h.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(h.messages))
	}
	msg := h.messages[0]
	if msg.ID != "wamid.1" || msg.From != "15550001111" || msg.Body != "Coffee 120" {
		t.Errorf("message = %+v", msg)
	}
	if msg.HasMedia {
		t.Error("text message should not carry media")
	}
}

func TestReceiveDeduplicates(t *testing.T) {
	h := &fakeHandler{}
	s := newTestServer(h)

	postNotification(s, textPayload)
	postNotification(s, textPayload)

	if len(h.messages) != 1 {
		t.Errorf("redelivery should be dropped, handled %d messages", len(h.messages))
	}
}

func TestReceiveImageMessage(t *testing.T) {
	h := &fakeHandler{}
	s := newTestServer(h)

	payload := `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"id": "wamid.2",
						"from": "15550001111",
						"type": "image",
						"image": {"id": "media-77", "caption": "Groceries"}
					}]
				}
			}]
		}]
	}`
	postNotification(s, payload)

	if len(h.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(h.messages))
	}
	msg := h.messages[0]
	if !msg.HasMedia || msg.Body != "Groceries" {
		t.Errorf("message = %+v", msg)
	}
	if msg.DownloadMedia == nil {
		t.Fatal("image message should carry a downloader")
	}
	payloadData, err := msg.DownloadMedia(context.Background())
	if err != nil {
		t.Fatalf("DownloadMedia: %v", err)
	}
	if string(payloadData.Data) != "bytes-of-media-77" {
		t.Errorf("downloader bound to wrong media id: %q", payloadData.Data)
	}
}

func TestReceiveIgnoresUnsupportedTypes(t *testing.T) {
	h := &fakeHandler{}
	s := newTestServer(h)

	payload := `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"id": "wamid.3",
						"from": "15550001111",
						"type": "audio"
					}]
				}
			}]
		}]
	}`
	rec := postNotification(s, payload)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(h.messages) != 0 {
		t.Errorf("unsupported type should not be dispatched, got %d", len(h.messages))
	}
}

func TestReceiveAcksHandlerFailure(t *testing.T) {
	h := &fakeHandler{err: errors.New("boom")}
	s := newTestServer(h)

	rec := postNotification(s, textPayload)
	if rec.Code != http.StatusOK {
		t.Errorf("handler failure must still ack with 200, got %d", rec.Code)
	}
}

func TestReceiveToleratesGarbage(t *testing.T) {
	s := newTestServer(&fakeHandler{})
	rec := postNotification(s, "not json at all")
	if rec.Code != http.StatusOK {
		t.Errorf("garbage payload must still ack with 200, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeHandler{})
	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
