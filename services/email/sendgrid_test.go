package emailsvc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniordw/rotasi-lms-sub000/core"
)

func newSendgridTest(t *testing.T, status int) (*sendgridService, *map[string]interface{}, *int32) {
	var (
		body  map[string]interface{}
		calls int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	svc := NewSendgridService(&core.Config{AppName: "Rotasi LMS", SendgridApiKey: "sg-key"}, nil)
	svc.host = srv.URL
	return svc, &body, &calls
}

func certificateMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:         []mail.Address{{Name: "Budi", Address: "budi@rotasi.test"}},
		Subject:    "Your certificate",
		BodyStr:    `Your certificate for "Go Basics" is ready.`,
		Categories: []string{"notification", "certificate"},
		Args:       map[string]string{"notification_id": "42", "user_id": "7"},
	}
}

func TestSendgridService_deliver(t *testing.T) {
	svc, body, calls := newSendgridTest(t, http.StatusAccepted)

	require.NoError(t, svc.deliver(certificateMessage()))
	require.EqualValues(t, 1, atomic.LoadInt32(calls))

	got := *body
	assert.Equal(t, []interface{}{"notification", "certificate"}, got["categories"])
	assert.Equal(t, map[string]interface{}{"notification_id": "42", "user_id": "7"}, got["custom_args"])

	pers := got["personalizations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "[Rotasi LMS] Your certificate", pers["subject"])
	to := pers["to"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "budi@rotasi.test", to["email"])
	assert.NotContains(t, pers, "cc")

	content := got["content"].([]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "text/plain", content[0].(map[string]interface{})["type"])
}

func TestSendgridService_deliver_rejected(t *testing.T) {
	svc, _, _ := newSendgridTest(t, http.StatusBadRequest)
	assert.Error(t, svc.deliver(certificateMessage()))
}

func TestSendgridService_deliver_noRecipients(t *testing.T) {
	svc, _, calls := newSendgridTest(t, http.StatusAccepted)

	msg := certificateMessage()
	msg.To = nil
	require.NoError(t, svc.deliver(msg))
	assert.Zero(t, atomic.LoadInt32(calls))
}
