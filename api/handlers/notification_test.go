package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/citizenvoice/citizenvoice-api/models"
)

func TestNotificationInbox(t *testing.T) {
	ta := newTestApp(t)
	_, citizen := ta.signIn(t, "Meera", "meera@example.com", models.UserCitizen)
	officer, officerToken := ta.signIn(t, "Asha", "asha@city.gov", models.UserOfficial)
	_, admin := ta.signIn(t, "Chief", adminEmail, models.UserOfficial)

	issue := ta.createIssue(t, citizen, 18.5, 73.8)
	rr := ta.do(t, "POST", "/api/v1/officials/issues/"+issue.ID.Hex()+"/assign", admin, map[string]string{"assigneeId": officer.ID.Hex()})
	checkResponseCode(t, http.StatusOK, rr)

	rr = ta.do(t, "GET", "/api/v1/notifications?unread=true", officerToken, nil)
	checkResponseCode(t, http.StatusOK, rr)
	var notes []models.Notification
	decodeBody(t, rr, &notes)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationIssueAssigned, notes[0].Type)
	assert.False(t, notes[0].Read)

	// only the recipient can mark it read
	rr = ta.do(t, "PUT", "/api/v1/notifications/"+notes[0].ID.Hex()+"/read", citizen, nil)
	checkResponseCode(t, http.StatusNotFound, rr)

	rr = ta.do(t, "PUT", "/api/v1/notifications/"+notes[0].ID.Hex()+"/read", officerToken, nil)
	checkResponseCode(t, http.StatusOK, rr)
	assert.JSONEq(t, `{"read": true}`, rr.Body.String())

	rr = ta.do(t, "GET", "/api/v1/notifications?unread=true", officerToken, nil)
	checkResponseCode(t, http.StatusOK, rr)
	decodeBody(t, rr, &notes)
	assert.Empty(t, notes)

	rr = ta.do(t, "PUT", "/api/v1/notifications/"+primitive.NewObjectID().Hex()+"/read", officerToken, nil)
	checkResponseCode(t, http.StatusNotFound, rr)
}

func TestNotificationSocket(t *testing.T) {
	ta := newTestApp(t)
	reporter, citizen := ta.signIn(t, "Meera", "meera@example.com", models.UserCitizen)
	officer, _ := ta.signIn(t, "Asha", "asha@city.gov", models.UserOfficial)
	_, admin := ta.signIn(t, "Chief", adminEmail, models.UserOfficial)
	issue := ta.createIssue(t, citizen, 18.5, 73.8)

	srv := httptest.NewServer(ta.Router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+citizen)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ta.Hub.Connected(reporter.ID.Hex()) }, time.Second, 5*time.Millisecond)

	rr := ta.do(t, "POST", "/api/v1/officials/issues/"+issue.ID.Hex()+"/assign", admin, map[string]string{"assigneeId": officer.ID.Hex()})
	checkResponseCode(t, http.StatusOK, rr)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Event string              `json:"event"`
		Data  models.Notification `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "new_notification", msg.Event)
	assert.Equal(t, reporter.ID, msg.Data.Recipient)
	assert.Equal(t, models.NotificationIssueStatusUpdate, msg.Data.Type)

	conn.Close()
	require.Eventually(t, func() bool { return !ta.Hub.Connected(reporter.ID.Hex()) }, time.Second, 5*time.Millisecond)
}

func TestHubPushWithoutSocket(t *testing.T) {
	hub := NewNotificationHub()
	assert.False(t, hub.Push(primitive.NewObjectID().Hex(), map[string]string{"x": "y"}))
}
