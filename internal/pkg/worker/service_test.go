package worker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vgarvardt/gue/v5"
	"github.com/vidmill/vidmill/internal/pkg/api"
	"github.com/vidmill/vidmill/internal/pkg/messages"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/test"
	"github.com/vidmill/vidmill/internal/pkg/test/mocks"
	"github.com/vidmill/vidmill/internal/pkg/transcription"
)

var (
	dbMock      *mocks.DB
	senderMock  *mocks.Sender
	trMock      *mocks.Transcriber
	indexerMock *mocks.Indexer
	srvData     *ServiceData
)

func initTest(t *testing.T) {
	dbMock = &mocks.DB{}
	senderMock = &mocks.Sender{}
	trMock = &mocks.Transcriber{}
	indexerMock = &mocks.Indexer{}
	srvData = &ServiceData{MsgSender: senderMock, DB: dbMock, Transcriber: trMock,
		Indexer: indexerMock, WorkerCount: 1, Testing: true}
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return("eID", nil).Maybe()
	dbMock.On("SetMediaTranscript", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	dbMock.On("SetMediaDuration", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

func testTranscript() *api.Transcript {
	return &api.Transcript{VideoID: "v1", Duration: 30,
		Text: "hello world and more words here",
		Segments: []api.Segment{{ID: 0, Start: 0, End: 15, Text: "hello world", Confidence: 0.9},
			{ID: 1, Start: 15, End: 30, Text: "and more words here", Confidence: 0.9}}}
}

func TestHandleTranscribe(t *testing.T) {
	initTest(t)
	media := &persistence.Media{ID: "v1", Status: status.Encoding.String(), AIEnabled: true}
	dbMock.On("LoadMedia", mock.Anything, "v1").Return(media, nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Transcribing,
		[]status.Status{status.Encoding, status.Ready, status.Transcribing}).Return(true, nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Indexing,
		[]status.Status{status.Transcribing}).Return(true, nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Ready,
		[]status.Status{status.Indexing}).Return(true, nil)
	trMock.On("TranscribeAudio", mock.Anything, media).Return(testTranscript(), nil)
	indexerMock.On("StoreChunks", mock.Anything, media, mock.Anything).Return(nil)

	err := handleTranscribe(test.Ctx(t), &messages.TranscribeMessage{MediaID: "v1"}, srvData)

	require.Nil(t, err)
	dbMock.AssertExpectations(t)
	indexerMock.AssertExpectations(t)
	dbMock.AssertCalled(t, "SetMediaTranscript", mock.Anything, "v1", transcription.TranscriptPath("v1"))
	dbMock.AssertCalled(t, "SetMediaDuration", mock.Anything, "v1", 30.0)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, messages.Inform)
}

func TestHandleTranscribe_NoMedia(t *testing.T) {
	initTest(t)
	dbMock.On("LoadMedia", mock.Anything, "v1").Return(nil, nil)

	err := handleTranscribe(test.Ctx(t), &messages.TranscribeMessage{MediaID: "v1"}, srvData)

	require.Nil(t, err)
	trMock.AssertNotCalled(t, "TranscribeAudio", mock.Anything, mock.Anything)
}

func TestHandleTranscribe_WrongStatus(t *testing.T) {
	initTest(t)
	media := &persistence.Media{ID: "v1", Status: status.Ready.String()}
	dbMock.On("LoadMedia", mock.Anything, "v1").Return(media, nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Transcribing,
		mock.Anything).Return(false, nil)

	err := handleTranscribe(test.Ctx(t), &messages.TranscribeMessage{MediaID: "v1"}, srvData)

	require.Nil(t, err)
	trMock.AssertNotCalled(t, "TranscribeAudio", mock.Anything, mock.Anything)
}

func TestHandleTranscribe_AudioTooLarge(t *testing.T) {
	initTest(t)
	media := &persistence.Media{ID: "v1", Status: status.Encoding.String()}
	dbMock.On("LoadMedia", mock.Anything, "v1").Return(media, nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Transcribing,
		mock.Anything).Return(true, nil)
	dbMock.On("SetMediaFailure", mock.Anything, "v1", status.FailedTranscription,
		mock.Anything).Return(nil)
	trMock.On("TranscribeAudio", mock.Anything, media).Return(nil,
		&transcription.ErrAudioTooLarge{Size: 30 << 20, Limit: 20 << 20})

	err := handleTranscribe(test.Ctx(t), &messages.TranscribeMessage{MediaID: "v1"}, srvData)

	require.Nil(t, err)
	dbMock.AssertExpectations(t)
	indexerMock.AssertNotCalled(t, "StoreChunks", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleTranscribe_TranscribeError(t *testing.T) {
	initTest(t)
	media := &persistence.Media{ID: "v1", Status: status.Encoding.String()}
	dbMock.On("LoadMedia", mock.Anything, "v1").Return(media, nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", status.Transcribing,
		mock.Anything).Return(true, nil)
	trMock.On("TranscribeAudio", mock.Anything, media).Return(nil, fmt.Errorf("olia"))

	err := handleTranscribe(test.Ctx(t), &messages.TranscribeMessage{MediaID: "v1"}, srvData)

	require.NotNil(t, err)
	var se *stageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status.FailedTranscription, se.stage)
}

func TestHandleTranscribe_IndexError(t *testing.T) {
	initTest(t)
	media := &persistence.Media{ID: "v1", Status: status.Encoding.String()}
	dbMock.On("LoadMedia", mock.Anything, "v1").Return(media, nil)
	dbMock.On("UpdateMediaStatus", mock.Anything, "v1", mock.Anything, mock.Anything).Return(true, nil)
	trMock.On("TranscribeAudio", mock.Anything, media).Return(testTranscript(), nil)
	indexerMock.On("StoreChunks", mock.Anything, media, mock.Anything).Return(fmt.Errorf("olia"))

	err := handleTranscribe(test.Ctx(t), &messages.TranscribeMessage{MediaID: "v1"}, srvData)

	require.NotNil(t, err)
	var se *stageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status.FailedIndexing, se.stage)
}

func TestPipelineFailure_Retries(t *testing.T) {
	initTest(t)
	retry, _, err := pipelineFailure(srvData)(test.Ctx(t), &messages.TranscribeMessage{MediaID: "v1"},
		fmt.Errorf("olia"), &gue.Job{ErrorCount: 0})
	require.Nil(t, err)
	assert.True(t, retry)
	dbMock.AssertNotCalled(t, "SetMediaFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineFailure_Settles(t *testing.T) {
	initTest(t)
	dbMock.On("SetMediaFailure", mock.Anything, "v1", status.FailedIndexing, mock.Anything).Return(nil)
	retry, _, err := pipelineFailure(srvData)(test.Ctx(t), &messages.TranscribeMessage{MediaID: "v1"},
		&stageError{stage: status.FailedIndexing, err: fmt.Errorf("olia")}, &gue.Job{ErrorCount: 2})
	require.Nil(t, err)
	assert.False(t, retry)
	dbMock.AssertExpectations(t)
}

func Test_validate(t *testing.T) {
	initTest(t)
	srvData.GueClient = &gue.Client{}
	assert.Nil(t, validate(srvData))
	srvData.Indexer = nil
	assert.NotNil(t, validate(srvData))
}
