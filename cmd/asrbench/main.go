// Command asrbench manages installed speech models, transcribes WAV files and
// benchmarks models against the test clip set.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("asrbench failed")
		os.Exit(1)
	}
}
