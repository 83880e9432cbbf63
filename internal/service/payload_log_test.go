package service

import (
	"testing"

	"backoffice/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEncodePayloadLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	svc := &procurementService{log: &logger.Logger{SugaredLogger: zap.New(core).Sugar()}}

	assert.JSONEq(t, `{"a":1}`, string(svc.encodePayload(map[string]int{"a": 1})))
	assert.Zero(t, logs.Len())

	assert.Nil(t, svc.encodePayload(map[string]interface{}{"bad": make(chan int)}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to encode submission payload", logs.All()[0].Message)
}
