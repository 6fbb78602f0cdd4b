package classifierserver_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/classifier"
	"GrooveGauge/internal/classifierserver"
	"GrooveGauge/internal/emotion"
)

func pngFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func face(top string) classifierserver.Face {
	scores := map[string]float64{}
	for _, label := range emotion.Vocabulary {
		scores[label] = 0.01
	}
	scores[top] = 0.8
	return classifierserver.Face{Emotions: scores}
}

func fixedDetector(faces ...classifierserver.Face) classifierserver.Detector {
	return classifierserver.DetectorFunc(func(context.Context, []byte) ([]classifierserver.Face, error) {
		return faces, nil
	})
}

func newServer(detector classifierserver.Detector) *classifierserver.Server {
	cfg := classifierserver.DefaultConfig()
	cfg.Detector = detector
	return classifierserver.New(cfg)
}

func post(t *testing.T, handler http.Handler, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, classifier.AnalyzePath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func imageBody(data []byte) string {
	return `{"image":"` + base64.StdEncoding.EncodeToString(data) + `"}`
}

func TestAnalyzeRejectsMissingImage(t *testing.T) {
	handler := newServer(fixedDetector()).Handler()

	for _, body := range []string{`{}`, `{"image":""}`, `not json`} {
		rec, out := post(t, handler, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "No image provided", out["error"])
	}
}

func TestAnalyzeRejectsUndecodableImage(t *testing.T) {
	handler := newServer(fixedDetector()).Handler()

	rec, out := post(t, handler, `{"image":"!!!not-base64"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(out["error"], "Failed to decode image"))

	rec, out = post(t, handler, imageBody([]byte("plain text, not a picture")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(out["error"], "Failed to decode image"))
}

func TestAnalyzeNoFaces(t *testing.T) {
	rec, out := post(t, newServer(fixedDetector()).Handler(), imageBody(pngFrame(t)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"emotion": "none", "feedback": "No faces detected."}, out)
}

func TestAnalyzeMostCommonTopEmotion(t *testing.T) {
	srv := newServer(fixedDetector(face("sad"), face("happy"), face("happy")))
	_, out := post(t, srv.Handler(), imageBody(pngFrame(t)))
	assert.Equal(t, "happy", out["emotion"])
	assert.Equal(t, "The crowd is loving it your music - keep it up!", out["feedback"])

	srv = newServer(fixedDetector(face("angry"), face("happy")))
	_, out = post(t, srv.Handler(), imageBody(pngFrame(t)))
	assert.Equal(t, "angry", out["emotion"])
	assert.Equal(t, "The crowd is not very engaged. Consider playing a more upbeat song.", out["feedback"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(fixedDetector(face("happy")))
	handler := srv.Handler()

	post(t, handler, imageBody(pngFrame(t)))
	post(t, handler, `{}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var metrics struct {
		TotalRequests int64            `json:"total_requests"`
		ErrorCount    int64            `json:"error_count"`
		Emotions      map[string]int64 `json:"emotions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, int64(3), metrics.TotalRequests)
	assert.Equal(t, int64(1), metrics.ErrorCount)
	assert.Equal(t, int64(1), metrics.Emotions["happy"])
}

func TestCORSPreflight(t *testing.T) {
	handler := newServer(fixedDetector()).Handler()

	req := httptest.NewRequest(http.MethodOptions, classifier.AnalyzePath, nil)
	req.Header.Set("Origin", "http://localhost:8081")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHashDetectorIsDeterministic(t *testing.T) {
	frame := pngFrame(t)
	var d classifierserver.HashDetector

	first, err := d.Detect(context.Background(), frame)
	require.NoError(t, err)
	second, err := d.Detect(context.Background(), frame)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.LessOrEqual(t, len(first), 3)
	for _, f := range first {
		assert.Contains(t, emotion.Vocabulary, f.TopEmotion())
	}
}

func TestTopOverallTieKeepsFirstSeen(t *testing.T) {
	assert.Equal(t, "sad", classifierserver.TopOverall([]classifierserver.Face{face("sad"), face("fear"), face("fear"), face("sad")}))
	assert.Equal(t, "", classifierserver.TopOverall(nil))
}

func TestClientAgainstServer(t *testing.T) {
	srv := newServer(fixedDetector(face("surprise")))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := classifier.New(classifier.DefaultConfig(ts.URL))
	res, err := client.Classify(context.Background(), pngFrame(t))
	require.NoError(t, err)
	assert.Equal(t, "surprise", res.Emotion)
}

func TestGRPCHealth(t *testing.T) {
	srv := newServer(fixedDetector())

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go srv.Serve(httpLis, grpcLis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		return classifier.CheckHealth(ctx, grpcLis.Addr().String()) == nil
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, srv.Shutdown(ctx))
	assert.Error(t, classifier.CheckHealth(ctx, grpcLis.Addr().String()))
}
