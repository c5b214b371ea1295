package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoggerLevels проверяет фильтрацию сообщений по минимальному уровню
func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("network", &buf, WARN)

	logger.Debug("скрытое сообщение")
	logger.Info("тоже скрытое")
	logger.Warn("очередь переполнена: %d", 51)
	logger.Error("соединение закрыто")

	out := buf.String()
	assert.NotContains(t, out, "скрытое")
	assert.Contains(t, out, "[WARN] [network] очередь переполнена: 51")
	assert.Contains(t, out, "[ERROR] [network] соединение закрыто")
}

// TestNilLoggerIsSilent проверяет, что nil логгер безопасен
func TestNilLoggerIsSilent(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Info("ничего не произойдет")
		logger.Error("и здесь тоже")
	})
}

// TestParseLevel проверяет разбор уровня из конфигурации
func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, TRACE, ParseLevel("TRACE"))
	assert.Equal(t, INFO, ParseLevel("unknown"))
}

// TestNewLoggerWritesFile проверяет создание файла логов компонента
func TestNewLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	prev := LogDir
	LogDir = dir
	defer func() { LogDir = prev }()

	logger, err := NewLogger("game")
	require.NoError(t, err)
	logger.Debug("снапшот мира применен")
	require.NoError(t, logger.Close())

	files, err := filepath.Glob(filepath.Join(dir, "game_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "снапшот мира применен")
}

// TestLogProtocolError проверяет вывод ошибки протокола с дампом кадра
func TestLogProtocolError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("network", &buf, TRACE)

	LogProtocolError(logger, "session-1", errors.New("bad frame"), []byte("{oops"))

	out := buf.String()
	assert.Contains(t, out, "session-1")
	assert.Contains(t, out, "bad frame")
	assert.Contains(t, out, "7b 6f 6f 70 73")
}

// TestManagerRegister проверяет повторное использование логгеров компонентов
func TestManagerRegister(t *testing.T) {
	var buf bytes.Buffer
	manager := GetLoggerManager()
	manager.Register("replay-test", NewWriterLogger("replay-test", &buf, DEBUG))

	GetComponentLogger("replay-test").Debug("запись")
	assert.Contains(t, buf.String(), "запись")
	assert.Contains(t, manager.ListComponents(), "replay-test")
	require.NoError(t, manager.SetLogLevel("replay-test", ERROR, ERROR))
}

// TestManagerLevelsInherited проверяет, что новые логгеры получают общие уровни
func TestManagerLevelsInherited(t *testing.T) {
	prev := LogDir
	LogDir = ""
	defer func() { LogDir = prev }()

	manager := newLoggerManager()
	manager.SetAllLevels(ERROR, ERROR)

	logger, err := manager.GetLogger("late")
	require.NoError(t, err)
	assert.Equal(t, ERROR, logger.minConsoleLevel)

	assert.Error(t, manager.SetLogLevel("missing", DEBUG, DEBUG))
	assert.Equal(t, []string{"late"}, manager.ListComponents())
	require.NoError(t, manager.CloseAll())
	assert.Empty(t, manager.ListComponents())
}
