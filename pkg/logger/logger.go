package logger

import (
	"io"
	"os"

	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

var Log = slog.New(slog.NewJSONHandler(io.Discard, nil))

func Init(logFilePath string) {
	setup(io.MultiWriter(os.Stdout, rotator(logFilePath)))
}

// InitFile logs to the rotated file only, leaving the console to the caller.
func InitFile(logFilePath string) {
	setup(rotator(logFilePath))
}

func rotator(logFilePath string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // MB
		MaxBackups: 0,  // only one file
		MaxAge:     0,  // ignore age
		Compress:   false,
	}
}

func setup(w io.Writer) {
	Log = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFromEnv()}))
	slog.SetDefault(Log)
}

// levelFromEnv reads LOG_LEVEL; anything unrecognised means info.
func levelFromEnv() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
