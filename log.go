package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

// cliFormatter prints info lines bare and prefixes warnings and errors
// with the program name. Other levels use the text formatter.
type cliFormatter struct {
	text logrus.Formatter
}

func (f *cliFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	switch entry.Level {
	case logrus.InfoLevel:
		return append([]byte(entry.Message), '\n'), nil
	case logrus.WarnLevel:
		return []byte("syslinux: warning: " + entry.Message + "\n"), nil
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return []byte("syslinux: " + entry.Message + "\n"), nil
	}
	return f.text.Format(entry)
}

func newLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&cliFormatter{text: &logrus.TextFormatter{DisableTimestamp: true}})
	log.SetLevel(logrus.WarnLevel)
	return log
}

func setVerbosity(log *logrus.Logger, n int) {
	switch {
	case n >= 2:
		log.SetLevel(logrus.DebugLevel)
	case n == 1:
		log.SetLevel(logrus.InfoLevel)
	}
}
