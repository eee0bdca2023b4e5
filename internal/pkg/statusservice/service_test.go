package statusservice

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/test"
	"github.com/vidmill/vidmill/internal/pkg/test/mocks"
)

type mockWSConnHandler struct{ mock.Mock }

func (m *mockWSConnHandler) HandleConnection(conn WsConn) error {
	args := m.Called(conn)
	return args.Error(0)
}

func (m *mockWSConnHandler) GetConnections(id string) ([]WsConn, bool) {
	args := m.Called(id)
	var res []WsConn
	if args.Get(0) != nil {
		res = args.Get(0).([]WsConn)
	}
	return res, args.Bool(1)
}

type mockWSConn struct{ mock.Mock }

func (m *mockWSConn) ReadMessage() (int, []byte, error) {
	args := m.Called()
	return args.Int(0), args.Get(1).([]byte), args.Error(2)
}

func (m *mockWSConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockWSConn) WriteJSON(v interface{}) error {
	args := m.Called(v)
	return args.Error(0)
}

var (
	wsHandlerMock *mockWSConnHandler
	dbMock        *mocks.DB
	tData         *Data
	tEcho         *echo.Echo
	tResp         *httptest.ResponseRecorder
)

func initTest(t *testing.T) {
	wsHandlerMock = &mockWSConnHandler{}
	dbMock = &mocks.DB{}
	tData = &Data{}
	tData.DB = dbMock
	tData.WSHandler = wsHandlerMock
	tEcho = initRoutes(tData)
	tResp = httptest.NewRecorder()
	dbMock.On("LoadMedia", mock.Anything, mock.Anything).Return(&persistence.Media{ID: "1",
		Title: "olia", Status: status.Ready.String(),
		ThumbnailPath: sql.NullString{String: "1/thumbnail.jpg", Valid: true}}, nil)
	dbMock.On("ListVariants", mock.Anything, mock.Anything).Return([]*persistence.Variant{
		{MediaID: "1", Quality: "720p", Status: status.VariantReady},
		{MediaID: "1", Quality: "1080p", Status: status.VariantSkipped}}, nil)
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	testCode(t, req, 404)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/status/1", nil)
	testCode(t, req, 405)
}

func Test_Status_Returns(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/status/1", nil)
	resp := testCode(t, req, http.StatusOK)
	res := test.Decode[result](t, resp.Result())
	assert.Equal(t, "1", res.ID)
	assert.Equal(t, "ready", res.Status)
	assert.True(t, res.ThumbnailReady)
	assert.False(t, res.TranscriptReady)
	require.Len(t, res.Variants, 2)
	assert.Equal(t, variantResult{Quality: "720p", Status: "ready"}, res.Variants[0])
}

func Test_Status_Empty(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/status/2", nil)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadMedia", mock.Anything, mock.Anything).Return(nil, nil)
	resp := testCode(t, req, http.StatusOK)
	res := test.Decode[result](t, resp.Result())
	assert.Equal(t, result{ID: "2", Status: "NOT_FOUND", Error: "NOT_FOUND", ErrorCode: "NOT_FOUND"}, res)
}

func Test_Status_Fail(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/status/1", nil)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadMedia", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia"))
	_ = testCode(t, req, http.StatusInternalServerError)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	testCode(t, req, 200)
}

func testCode(t *testing.T, req *http.Request, code int) *httptest.ResponseRecorder {
	t.Helper()
	tEcho.ServeHTTP(tResp, req)
	require.Equal(t, code, tResp.Code)
	return tResp
}

func Test_validate(t *testing.T) {
	initTest(t)
	assert.Nil(t, validate(tData))
	assert.NotNil(t, validate(&Data{WSHandler: wsHandlerMock}))
	assert.NotNil(t, validate(&Data{DB: dbMock}))
}
