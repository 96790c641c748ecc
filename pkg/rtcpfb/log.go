package rtcpfb

import "github.com/sirupsen/logrus"

var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the logger used to report dropped packets.
// Passing nil restores the logrus standard logger. Call it during
// initialization; it is not synchronized with concurrent parsing.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	logger = l
}
