package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config настройки логирования
type Config struct {
	// Level - минимальный уровень: trace, debug, info, warn, error
	Level string
	// File - файл с ротацией. Пустая строка - только консоль
	File string
	// MaxSizeMB - размер файла до ротации
	MaxSizeMB int
	// MaxBackups - сколько старых файлов хранить
	MaxBackups int
}

// Logger корневой логгер приложения
type Logger struct {
	log  *logrus.Logger
	file *lumberjack.Logger
}

// New создает логгер. Записи идут в консоль и, если задан файл, в файл с ротацией.
func New(cfg Config) (*Logger, error) {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = lvl
	}

	l := &Logger{log: logrus.New()}
	l.log.SetLevel(level)
	l.log.SetOutput(io.Discard)
	l.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	l.log.AddHook(&writerHook{Writer: os.Stdout, LogLevels: availableLevels(level)})

	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // megabytes
			MaxBackups: 1,
		}
		if cfg.MaxSizeMB > 0 {
			l.file.MaxSize = cfg.MaxSizeMB
		}
		if cfg.MaxBackups > 0 {
			l.file.MaxBackups = cfg.MaxBackups
		}
		l.log.AddHook(&writerHook{Writer: l.file, LogLevels: availableLevels(level)})
	}
	return l, nil
}

// Component возвращает логгер компонента
func (l *Logger) Component(name string) *logrus.Entry {
	return l.log.WithField("component", name)
}

// Logrus возвращает нижележащий логгер
func (l *Logger) Logrus() *logrus.Logger {
	return l.log
}

// AddOutput дублирует записи с уровнем не ниже min в w
func (l *Logger) AddOutput(w io.Writer, min logrus.Level) {
	l.log.AddHook(&writerHook{Writer: w, LogLevels: availableLevels(min)})
}

// Close закрывает файл логов
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// writerHook пишет записи заданных уровней в Writer
type writerHook struct {
	Writer    io.Writer
	LogLevels []logrus.Level
}

func (h *writerHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	_, err = h.Writer.Write([]byte(line))
	return err
}

func (h *writerHook) Levels() []logrus.Level {
	return h.LogLevels
}

func availableLevels(min logrus.Level) []logrus.Level {
	levels := []logrus.Level{}
	for _, l := range logrus.AllLevels {
		if l <= min {
			levels = append(levels, l)
		}
	}
	return levels
}
