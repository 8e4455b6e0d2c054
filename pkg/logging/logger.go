package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared application logger. It is usable with its default
// settings before InitLogger runs, so library code and tests may log freely.
var Log = logrus.New()

func InitLogger(debug bool) {
	Log.SetOutput(os.Stdout)

	if debug {
		Log.SetLevel(logrus.DebugLevel)
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		Log.SetLevel(logrus.InfoLevel)
		Log.SetFormatter(&logrus.JSONFormatter{})
	}
}
