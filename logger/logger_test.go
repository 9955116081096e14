package logger_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/root-talis/henka/v2/logger"
)

var (
	_ logger.Logger = (*zap.SugaredLogger)(nil)
	_ logger.Logger = (*logrus.Logger)(nil)
)

func TestFromZap(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.FromZap(zap.New(core))

	log.Debugf("debug %d", 1)
	log.Infof("info %s", "two")
	log.Warnf("warn")
	log.Errorf("error %v", true)

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 4) {
		assert.Equal(t, "debug 1", entries[0].Message)
		assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
		assert.Equal(t, "info two", entries[1].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
		assert.Equal(t, "error true", entries[3].Message)
	}
}

func TestLogrusIsAcceptedAsIs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lr := logrus.New()
	lr.SetOutput(&buf)
	lr.SetLevel(logrus.DebugLevel)

	var log logger.Logger = lr
	log.Infof("applied %s", "01-a")

	assert.Contains(t, buf.String(), "applied 01-a")
}

func TestNopAndDefaultDoNotPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		logger.Nop().Errorf("nothing to see")
		logger.New(zapcore.ErrorLevel).Debugf("filtered out")
	})
	assert.NotNil(t, logger.Default())
}

func TestNewConsoleFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewConsole(zapcore.InfoLevel, &buf)

	log.Debugf("hidden %d", 1)
	log.Infof("shown %d", 2)
	log.Errorf("shown %d", 3)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Contains(t, buf.String(), "shown 3")
}
