package statusservice

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vgarvardt/gue/v5"
	"github.com/vidmill/vidmill/internal/pkg/messages"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/test/mocks"
)

var (
	hWsMock *mockWSConnHandler
	hDBMock *mocks.DB
	hData   *HandlerData
)

func initHandlerTest(t *testing.T) {
	hWsMock = &mockWSConnHandler{}
	hDBMock = &mocks.DB{}
	hData = &HandlerData{}
	hData.DB = hDBMock
	hData.WSHandler = hWsMock
}

func TestHandleStatus(t *testing.T) {
	initHandlerTest(t)
	hDBMock.On("LoadMedia", mock.Anything, mock.Anything).Return(&persistence.Media{ID: "1",
		Title: "olia", Status: status.Ready.String()}, nil)
	hDBMock.On("ListVariants", mock.Anything, mock.Anything).Return([]*persistence.Variant{
		{MediaID: "1", Quality: "720p", Status: status.VariantReady}}, nil)
	conn := &mockWSConn{}
	conn.On("WriteJSON", mock.Anything).Return(nil)
	hWsMock.On("GetConnections", "1").Return([]WsConn{conn}, true)

	err := handleStatus(context.Background(), &messages.StatusMessage{MediaID: "1", Status: "ready"}, hData)

	assert.Nil(t, err)
	conn.AssertNumberOfCalls(t, "WriteJSON", 1)
	sent := conn.Calls[0].Arguments[0].(*result)
	assert.Equal(t, "1", sent.ID)
	assert.Equal(t, "ready", sent.Status)
}

func TestHandleStatus_NoConnections(t *testing.T) {
	initHandlerTest(t)
	hWsMock.On("GetConnections", "1").Return(nil, false)

	err := handleStatus(context.Background(), &messages.StatusMessage{MediaID: "1"}, hData)

	assert.Nil(t, err)
	hDBMock.AssertNumberOfCalls(t, "LoadMedia", 0)
}

func TestHandleStatus_NoMedia(t *testing.T) {
	initHandlerTest(t)
	conn := &mockWSConn{}
	hWsMock.On("GetConnections", "1").Return([]WsConn{conn}, true)
	hDBMock.On("LoadMedia", mock.Anything, mock.Anything).Return(nil, nil)

	err := handleStatus(context.Background(), &messages.StatusMessage{MediaID: "1"}, hData)

	assert.NotNil(t, err)
	conn.AssertNumberOfCalls(t, "WriteJSON", 0)
}

func TestHandleStatus_DBFails(t *testing.T) {
	initHandlerTest(t)
	conn := &mockWSConn{}
	hWsMock.On("GetConnections", "1").Return([]WsConn{conn}, true)
	hDBMock.On("LoadMedia", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia"))

	err := handleStatus(context.Background(), &messages.StatusMessage{MediaID: "1"}, hData)

	assert.NotNil(t, err)
}

func Test_validateHandler(t *testing.T) {
	initHandlerTest(t)
	hData.GueClient = &gue.Client{}
	hData.WorkerCount = 1
	assert.Nil(t, validateHandler(hData))
	assert.NotNil(t, validateHandler(&HandlerData{WorkerCount: 1, DB: hDBMock, WSHandler: hWsMock}))
	assert.NotNil(t, validateHandler(&HandlerData{GueClient: hData.GueClient, DB: hDBMock, WSHandler: hWsMock}))
	assert.NotNil(t, validateHandler(&HandlerData{GueClient: hData.GueClient, WorkerCount: 1, WSHandler: hWsMock}))
	assert.NotNil(t, validateHandler(&HandlerData{GueClient: hData.GueClient, WorkerCount: 1, DB: hDBMock}))
}
