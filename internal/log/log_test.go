package log

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"nonsense", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := levelFromEnv(tt.in); got != tt.want {
			t.Errorf("levelFromEnv(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGetLoggerUsesEnv(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	if l := GetLogger(); l.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", l.GetLevel())
	}
}
