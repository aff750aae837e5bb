package pipeline_test

import "github.com/rs/zerolog"

func zerologTestLogger() zerolog.Logger {
	return zerolog.Nop()
}
