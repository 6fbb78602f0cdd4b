package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"GrooveGauge/internal/classifier"
)

// ClassifierServer 情绪分类服务桩
type ClassifierServer struct {
	*httptest.Server

	t      *testing.T
	mu     sync.Mutex
	labels []string
	status int
	calls  int
	auth   []string
}

// NewClassifierServer 创建并启动分类服务桩，按顺序循环返回 labels
func NewClassifierServer(t *testing.T, labels ...string) *ClassifierServer {
	cs := &ClassifierServer{
		t:      t,
		labels: labels,
		status: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(classifier.AnalyzePath, cs.handleAnalyze)
	cs.Server = httptest.NewServer(mux)

	t.Logf("✅ Classifier stub started on %s", cs.URL)
	t.Cleanup(cs.Stop)
	return cs
}

// Stop 停止服务桩
func (cs *ClassifierServer) Stop() {
	cs.Server.Close()
}

// SetStatus 设置后续响应的状态码
func (cs *ClassifierServer) SetStatus(status int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.status = status
}

// Calls 请求次数
func (cs *ClassifierServer) Calls() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.calls
}

// AuthHeaders 收到的 Authorization 头
func (cs *ClassifierServer) AuthHeaders() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]string, len(cs.auth))
	copy(out, cs.auth)
	return out
}

func (cs *ClassifierServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req classifier.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		http.Error(w, `{"error":"No image provided"}`, http.StatusBadRequest)
		return
	}

	cs.mu.Lock()
	cs.calls++
	cs.auth = append(cs.auth, r.Header.Get("Authorization"))
	status := cs.status
	label := ""
	if len(cs.labels) > 0 {
		label = cs.labels[(cs.calls-1)%len(cs.labels)]
	}
	cs.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(classifier.Result{Emotion: label, Feedback: "stub"})
}
