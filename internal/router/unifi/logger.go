package unifi

import "github.com/sirupsen/logrus"

// Logger is the logging surface the client needs. Keeps the package free of
// a hard logrus dependency at the call sites.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// LogrusAdapter adapts a logrus.Logger to the Logger interface.
type LogrusAdapter struct {
	logger *logrus.Logger
}

func NewLogrusAdapter(logger *logrus.Logger) *LogrusAdapter {
	return &LogrusAdapter{logger: logger}
}

func (la *LogrusAdapter) Debugf(format string, args ...interface{}) {
	la.logger.Debugf(format, args...)
}

func (la *LogrusAdapter) Infof(format string, args ...interface{}) {
	la.logger.Infof(format, args...)
}

func (la *LogrusAdapter) Errorf(format string, args ...interface{}) {
	la.logger.Errorf(format, args...)
}

// TestLogger routes client logs through a testing.T.
type TestLogger struct {
	t interface {
		Logf(format string, args ...interface{})
	}
}

func NewTestLogger(t interface {
	Logf(format string, args ...interface{})
}) *TestLogger {
	return &TestLogger{t: t}
}

func (tl *TestLogger) Debugf(format string, args ...interface{}) {
	tl.t.Logf("[DEBUG] "+format, args...)
}

func (tl *TestLogger) Infof(format string, args ...interface{}) {
	tl.t.Logf("[INFO] "+format, args...)
}

func (tl *TestLogger) Errorf(format string, args ...interface{}) {
	tl.t.Logf("[ERROR] "+format, args...)
}
