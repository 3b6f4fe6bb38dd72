package transcription

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/audio"
	"github.com/obiente/voiceinput/internal/capture"
	"github.com/obiente/voiceinput/internal/engine"
)

// TranscribeFile decodes a WAV recording and streams it through eng in
// half-second chunks, as if it were being captured, then returns the final
// result. eng must already be loaded and idle.
func TranscribeFile(ctx context.Context, eng engine.Engine, wav []byte, opts capture.Options) engine.Result {
	if !eng.IsLoaded() {
		return engine.Failure("Engine not loaded")
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = engine.DefaultSampleRate
		opts.SampleRate = rate
	}
	clip, err := audio.Decode(wav, rate)
	if err != nil {
		log.Warn().Err(err).Msg("transcription: decode file")
		return engine.Failure("Failed to read audio file")
	}
	if err := eng.StartCapture(); err != nil {
		return engine.Failure(err.Error())
	}

	s := capture.NewSession(eng, opts)
	if err := s.StartFile(ctx, clip.Samples); err != nil {
		_ = eng.StopCapture(ctx)
		return engine.Failure(err.Error())
	}
	select {
	case <-s.Done():
	case <-ctx.Done():
	}
	if err := s.Stop(); err != nil {
		log.Warn().Err(err).Msg("transcription: file capture")
	}
	return eng.StopCapture(context.WithoutCancel(ctx))
}
