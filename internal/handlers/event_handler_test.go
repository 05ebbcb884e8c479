package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"autoflow/internal/models"
	"autoflow/internal/services"
)

func newEventRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerTestDB(t)
	eng := newHandlerTestEngine(t, services.NewStore(db))
	svc := services.NewEventService(db, eng, nil)

	router := gin.New()
	api := router.Group("/api")
	RegisterEventRoutes(api, NewEventHandler(svc))
	return router
}

func TestEventHandler_DispatchAccepted(t *testing.T) {
	router := newEventRouter(t)

	body, _ := json.Marshal(map[string]interface{}{
		"event_type": "issue_transitioned",
		"payload": map[string]interface{}{
			"issue_key": "DEMO-4",
			"to_status": "Done",
		},
	})
	req := httptest.NewRequest("POST", "/api/events/dispatch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var evt models.DomainEvent
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &evt))
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, "DEMO-4", evt.IssueKey)
}

func TestEventHandler_DispatchRequiresEventType(t *testing.T) {
	router := newEventRouter(t)

	body, _ := json.Marshal(map[string]interface{}{
		"payload": map[string]interface{}{"issue_key": "DEMO-4"},
	})
	req := httptest.NewRequest("POST", "/api/events/dispatch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandler_ListRecent(t *testing.T) {
	router := newEventRouter(t)

	for _, key := range []string{"DEMO-1", "DEMO-2"} {
		body, _ := json.Marshal(map[string]interface{}{
			"event_type": "issue_created",
			"payload":    map[string]interface{}{"issue_key": key},
		})
		req := httptest.NewRequest("POST", "/api/events/dispatch", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusAccepted, w.Code)
	}

	req := httptest.NewRequest("GET", "/api/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var events []models.DomainEvent
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.Len(t, events, 2)
}
