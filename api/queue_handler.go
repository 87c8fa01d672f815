package api

import (
	"net/http"
	"time"
)

// handleQueueStats 队列快照加推送连接数。
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, queueStatsResponse{
		Queue: s.scheduler.Stats(),
		Websockets: websocketStats{
			TotalConnections: s.hub.TotalSubscribers(),
		},
	})
}

// handlePause 暂停队列派发。
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Queue paused"})
}

// handleResume 恢复队列派发。
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Queue resumed"})
}

// handleHealth 健康检查，内嵌队列状态和连接数。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version,
		Queue:     s.scheduler.Stats(),
	}
	resp.Websockets.Connections = s.hub.TotalSubscribers()
	writeJSON(w, http.StatusOK, resp)
}
