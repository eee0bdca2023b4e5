package webhook

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vidmill/vidmill/internal/pkg/messages"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/test/mocks"
)

var (
	dbMock     *mocks.DB
	senderMock *mocks.Sender
	tData      *Data
	tEcho      *echo.Echo
	tResp      *httptest.ResponseRecorder
	tNow       time.Time
)

func initTest(t *testing.T) {
	dbMock = &mocks.DB{}
	senderMock = &mocks.Sender{}
	tNow = time.Unix(1700000000, 0)
	tData = &Data{Secret: testSecret, DB: dbMock, MsgSender: senderMock, nowF: func() time.Time { return tNow }}
	require.Nil(t, validate(tData))
	tEcho = initRoutes(tData)
	tResp = httptest.NewRecorder()
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return("eID", nil)
}

func signedReq(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/encoding", bytes.NewReader([]byte(body)))
	req.Header.Set(SignatureHeader, Sign(testSecret, tNow, []byte(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func testCode(t *testing.T, req *http.Request, code int) *httptest.ResponseRecorder {
	t.Helper()
	tEcho.ServeHTTP(tResp, req)
	require.Equal(t, code, tResp.Code)
	return tResp
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/invalid", nil)
	testCode(t, req, 404)
}

func TestNoSignature(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/webhook/encoding", bytes.NewReader([]byte(`{}`)))
	testCode(t, req, http.StatusUnauthorized)
}

func TestOldSignature(t *testing.T) {
	initTest(t)
	body := `{"event":"job.started","jobId":"j1","videoId":"v1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/encoding", bytes.NewReader([]byte(body)))
	req.Header.Set(SignatureHeader, Sign(testSecret, tNow.Add(-MaxSkew-time.Second), []byte(body)))
	testCode(t, req, http.StatusUnauthorized)
}

func TestBadPayload(t *testing.T) {
	initTest(t)
	testCode(t, signedReq(`{olia`), http.StatusBadRequest)
}

func TestUnknownEvent(t *testing.T) {
	initTest(t)
	testCode(t, signedReq(`{"event":"job.olia","jobId":"j1","videoId":"v1"}`), http.StatusBadRequest)
}

func TestNoJobID(t *testing.T) {
	initTest(t)
	testCode(t, signedReq(`{"event":"job.started","videoId":"v1"}`), http.StatusBadRequest)
}

func TestStarted(t *testing.T) {
	initTest(t)
	dbMock.On("MarkJobProcessing", mock.Anything, "j1").Return(nil)
	dbMock.On("SetMediaSourceMeta", mock.Anything, "v1", int32(1920), int32(1080), 120.5,
		"h264", int32(5000), 25.0).Return(nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Encoding,
		[]status.Status{status.Uploading, status.Encoding}).Return(true, nil)
	resp := testCode(t, signedReq(`{"event":"job.started","jobId":"j1","videoId":"v1",
		"data":{"sourceWidth":1920,"sourceHeight":1080,"sourceCodec":"h264","sourceBitrate":5000,
		"sourceFps":25,"durationSec":120.5}}`), http.StatusOK)
	dbMock.AssertExpectations(t)
	assert.Contains(t, resp.Body.String(), `"ok"`)
}

func TestStarted_MediaAlreadyPastEncoding(t *testing.T) {
	initTest(t)
	dbMock.On("MarkJobProcessing", mock.Anything, "j1").Return(nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Encoding,
		[]status.Status{status.Uploading, status.Encoding}).Return(false, nil)
	testCode(t, signedReq(`{"event":"job.started","jobId":"j1","videoId":"v1"}`), http.StatusOK)
	dbMock.AssertExpectations(t)
}

func TestProgress(t *testing.T) {
	initTest(t)
	dbMock.On("SetVariantStatus", mock.Anything, "v1", "720p", status.VariantEncoding).Return(nil)
	dbMock.On("UpdateJobProgress", mock.Anything, "j1", int32(45), "720p").Return(nil)
	testCode(t, signedReq(`{"event":"job.progress","jobId":"j1","videoId":"v1",
		"data":{"percent":45.5,"currentQuality":"720p"}}`), http.StatusOK)
	dbMock.AssertExpectations(t)
}

func TestProgress_WrongPercent(t *testing.T) {
	initTest(t)
	resp := testCode(t, signedReq(`{"event":"job.progress","jobId":"j1","videoId":"v1",
		"data":{"percent":146}}`), http.StatusOK)
	assert.Contains(t, resp.Body.String(), `"failed"`)
	dbMock.AssertNotCalled(t, "UpdateJobProgress", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQualityCompleted(t *testing.T) {
	initTest(t)
	dbMock.On("SetVariantReady", mock.Anything, "v1", "720p", 1280, 720, 2800,
		int64(1000000), "v1/variants/720p/playlist.m3u8").Return(nil)
	testCode(t, signedReq(`{"event":"quality.completed","jobId":"j1","videoId":"v1",
		"data":{"quality":"720p","path":"v1/variants/720p/playlist.m3u8","width":1280,"height":720,
		"bitrate":2800,"sizeBytes":1000000}}`), http.StatusOK)
	dbMock.AssertExpectations(t)
}

func TestQualityCompleted_BadPath(t *testing.T) {
	initTest(t)
	resp := testCode(t, signedReq(`{"event":"quality.completed","jobId":"j1","videoId":"v1",
		"data":{"quality":"720p","path":"../../etc/passwd"}}`), http.StatusOK)
	assert.Contains(t, resp.Body.String(), `"failed"`)
	dbMock.AssertNotCalled(t, "SetVariantReady", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestThumbnail(t *testing.T) {
	initTest(t)
	dbMock.On("SetMediaThumbnail", mock.Anything, "v1", "v1/thumbnail.jpg").Return(nil)
	dbMock.On("MarkMediaJobCompleted", mock.Anything, "v1", persistence.JobTypeThumbnail).Return(nil)
	testCode(t, signedReq(`{"event":"thumbnail.generated","jobId":"j1","videoId":"v1",
		"data":{"path":"v1/thumbnail.jpg"}}`), http.StatusOK)
	dbMock.AssertExpectations(t)
}

func TestAudioExtracted(t *testing.T) {
	initTest(t)
	dbMock.On("SetMediaAudio", mock.Anything, "v1", "v1/audio.mp3").Return(nil)
	testCode(t, signedReq(`{"event":"audio.extracted","jobId":"j1","videoId":"v1",
		"data":{"path":"v1/audio.mp3","sizeBytes":500}}`), http.StatusOK)
	dbMock.AssertExpectations(t)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything,
		&messages.TranscribeMessage{QueueMessage: amessages.QueueMessage{ID: "v1"}, MediaID: "v1"}, messages.Pipeline)
}

func TestCompleted_NoAudio(t *testing.T) {
	initTest(t)
	dbMock.On("MarkJobCompleted", mock.Anything, "j1").Return(nil)
	dbMock.On("LoadMedia", mock.Anything, "v1").Return(&persistence.Media{ID: "v1"}, nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Ready,
		[]status.Status{status.Encoding}).Return(true, nil)
	testCode(t, signedReq(`{"event":"job.completed","jobId":"j1","videoId":"v1"}`), http.StatusOK)
	dbMock.AssertExpectations(t)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, messages.StatusChange)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, messages.Inform)
}

func TestCompleted_AIEnabled_LeavesPipeline(t *testing.T) {
	initTest(t)
	dbMock.On("MarkJobCompleted", mock.Anything, "j1").Return(nil)
	dbMock.On("LoadMedia", mock.Anything, "v1").Return(&persistence.Media{ID: "v1", AIEnabled: true}, nil)
	testCode(t, signedReq(`{"event":"job.completed","jobId":"j1","videoId":"v1"}`), http.StatusOK)
	dbMock.AssertExpectations(t)
	dbMock.AssertNotCalled(t, "UpdateMediaStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFailed(t *testing.T) {
	initTest(t)
	dbMock.On("MarkJobFailed", mock.Anything, "j1", "ENCODE_FAILED", "bad input", "").Return(nil)
	dbMock.On("SetMediaFailure", mock.Anything, "v1", status.Error, "ENCODE_FAILED: bad input").Return(nil)
	testCode(t, signedReq(`{"event":"job.failed","jobId":"j1","videoId":"v1",
		"data":{"code":"ENCODE_FAILED","message":"bad input"}}`), http.StatusOK)
	dbMock.AssertExpectations(t)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, messages.Inform)
}

func TestFailed_NamedQuality(t *testing.T) {
	initTest(t)
	dbMock.On("MarkJobFailed", mock.Anything, "j1", "ENCODE_FAILED", "bad input", "").Return(nil)
	dbMock.On("SetVariantStatus", mock.Anything, "v1", "480p", status.VariantError).Return(nil)
	dbMock.On("SetMediaFailure", mock.Anything, "v1", status.Error, mock.Anything).Return(nil)
	testCode(t, signedReq(`{"event":"job.failed","jobId":"j1","videoId":"v1",
		"data":{"code":"ENCODE_FAILED","message":"bad input","quality":"480p"}}`), http.StatusOK)
	dbMock.AssertExpectations(t)
}

func TestProcessingFailure_Acked(t *testing.T) {
	initTest(t)
	dbMock.On("MarkJobProcessing", mock.Anything, "j1").Return(fmt.Errorf("olia"))
	resp := testCode(t, signedReq(`{"event":"job.started","jobId":"j1","videoId":"v1"}`), http.StatusOK)
	assert.Contains(t, resp.Body.String(), `"failed"`)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	testCode(t, req, 200)
}

func Test_validate(t *testing.T) {
	d := &Data{Secret: testSecret, DB: &mocks.DB{}, MsgSender: &mocks.Sender{}}
	assert.Nil(t, validate(d))
	assert.NotNil(t, validate(&Data{DB: &mocks.DB{}, MsgSender: &mocks.Sender{}, Secret: "short"}))
	assert.NotNil(t, validate(&Data{MsgSender: &mocks.Sender{}, Secret: testSecret}))
	assert.NotNil(t, validate(&Data{DB: &mocks.DB{}, Secret: testSecret}))
}
